package model

// MaxAttachmentSize 是单个附件允许的最大字节数（10 MB）。
const MaxAttachmentSize = 10 * 1024 * 1024

// Attachment 是用户随消息提交的单个文件。
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// Part 将附件转换为内联数据片段。
func (a Attachment) Part() Part {
	return Part{InlineData: &InlineData{MimeType: a.MimeType, Data: a.Data}}
}
