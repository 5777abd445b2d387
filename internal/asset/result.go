package asset

import "errors"

// Op 标识消息对应的操作。
type Op string

const (
	OpGet    Op = "get"
	OpUpdate Op = "update"
)

// Source 标识成功结果来自哪一层。
type Source string

const (
	SourceCache  Source = "cache"
	SourceBundle Source = "bundle"
	SourceRemote Source = "remote"
)

// Result 是一次 get/update 的终态，Err 为空时 Content 对 Source 所在层有效。
// update 成功不回传内容。
type Result struct {
	Op      Op
	Path    string
	Content string
	Source  Source
	Err     error
}

// OK 报告结果是否成功。
func (r Result) OK() bool {
	return r.Err == nil
}

// ErrorInfo 是消息中的错误描述。
type ErrorInfo struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Message 是投递给外部监听方的结果，字段与 Result 一一对应。
type Message struct {
	What    Op         `json:"what"`
	Path    string     `json:"path"`
	Content string     `json:"content,omitempty"`
	Source  Source     `json:"source,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// Message 将 Result 转换为可序列化的消息。
func (r Result) Message() Message {
	msg := Message{
		What:   r.Op,
		Path:   r.Path,
		Source: r.Source,
	}
	if r.Err != nil {
		msg.Error = &ErrorInfo{Kind: KindOf(r.Err), Message: r.Err.Error()}
		msg.Source = ""
		return msg
	}
	if r.Op == OpGet {
		msg.Content = r.Content
	}
	return msg
}

// lookupStatus 是缓存查询阶段的标签。
type lookupStatus int

const (
	lookupFound lookupStatus = iota
	lookupMiss
	lookupFailed
)

// lookup 是缓存阶段的结果：found 携带内容，miss/failed 携带原因。
type lookup struct {
	status  lookupStatus
	content string
	err     error
}

func found(content string) lookup { return lookup{status: lookupFound, content: content} }
func miss(err error) lookup       { return lookup{status: lookupMiss, err: err} }
func failed(err error) lookup     { return lookup{status: lookupFailed, err: err} }

var errNoCacheTier = errors.New("no cache tier configured")
