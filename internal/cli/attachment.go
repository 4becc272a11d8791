// Package cli 实现终端聊天客户端的展示层：行编辑输入、斜杠命令、Markdown 渲染与流式输出。
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"mu-assistant-go/internal/model"
)

// supportedPrefixes 是上游模型可以直接分析的附件类型。
var supportedPrefixes = []string{"image/", "application/pdf", "text/plain"}

// LoadAttachment 读取本地文件作为附件，按文件内容识别 MIME 类型。
func LoadAttachment(path string) (*model.Attachment, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s 是目录", path)
	}
	// 超限文件不读入内存
	if info.Size() > model.MaxAttachmentSize {
		return nil, fmt.Errorf("文件 %s 超过 %d MB 限制", info.Name(), model.MaxAttachmentSize/(1024*1024))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("文件 %s 为空", info.Name())
	}

	mimeType, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	if !isSupported(mimeType) {
		return nil, fmt.Errorf("不支持的文件类型: %s", mimeType)
	}
	return &model.Attachment{
		Name:     filepath.Base(path),
		MimeType: mimeType,
		Data:     data,
	}, nil
}

func isSupported(mimeType string) bool {
	for _, p := range supportedPrefixes {
		if strings.HasPrefix(mimeType, p) {
			return true
		}
	}
	return false
}
