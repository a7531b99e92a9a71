package module

type resultKind uint8

const (
	kindRaw resultKind = iota
	kindPreShaped
)

// Result 采集结果：原始数据（Raw）或已带客户端身份的记录（PreShaped）。
// PreShaped 用于 Monitor 端转发客户端数据的场景，由模块显式声明，不从字段推断。
type Result struct {
	kind     resultKind
	data     any
	clientID string
}

// Raw 原始采集数据，由调度器打上本地客户端身份
func Raw(data any) Result {
	return Result{kind: kindRaw, data: data}
}

// PreShaped 已带 monitorClientId 的数据，原样使用
func PreShaped(monitorClientID string, data any) Result {
	return Result{kind: kindPreShaped, data: data, clientID: monitorClientID}
}

func (r Result) Data() any { return r.data }

// ClientID 返回 PreShaped 结果携带的 monitorClientId
func (r Result) ClientID() (string, bool) {
	return r.clientID, r.kind == kindPreShaped
}
