package cli

import "strings"

// Command 是用户输入的一条斜杠命令。
type Command struct {
	Name string
	Arg  string
}

const (
	CmdNew     = "new"
	CmdList    = "list"
	CmdSwitch  = "switch"
	CmdDelete  = "delete"
	CmdShow    = "show"
	CmdAttach  = "attach"
	CmdDetach  = "detach"
	CmdTheme   = "theme"
	CmdWhoami  = "whoami"
	CmdSignIn  = "signin"
	CmdSignOut = "signout"
	CmdHelp    = "help"
	CmdQuit    = "quit"
)

var aliases = map[string]string{
	"n":    CmdNew,
	"ls":   CmdList,
	"s":    CmdSwitch,
	"rm":   CmdDelete,
	"a":    CmdAttach,
	"h":    CmdHelp,
	"?":    CmdHelp,
	"q":    CmdQuit,
	"exit": CmdQuit,
}

// ParseCommand 解析以 "/" 开头的输入；普通消息返回 ok=false。
func ParseCommand(input string) (Command, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") || len(input) == 1 {
		return Command{}, false
	}
	name, arg, _ := strings.Cut(input[1:], " ")
	name = strings.ToLower(name)
	if full, ok := aliases[name]; ok {
		name = full
	}
	return Command{Name: name, Arg: strings.TrimSpace(arg)}, true
}

const helpText = `可用命令:
  /new              新建对话
  /list             列出所有对话
  /switch <序号>    切换到指定对话
  /delete [序号]    删除指定对话，默认删除当前对话
  /show             显示当前对话
  /attach <路径>    为下一条消息附加文件 (图片、PDF 或文本，最大 10 MB)
  /detach           取消待发送的附件
  /theme [名称]     查看或设置主题
  /whoami           显示当前用户
  /signin <令牌>    使用访问令牌登录
  /signout          退出登录
  /quit             退出`
