package flush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// FormField 表单字段名
	FormField = "moduledata"
	// TokenHeader 客户端认证头
	TokenHeader = "clienttoken"
)

// 确认体最大读取长度
const maxAckBytes = 8 << 20

// AckBody 200 响应体
type AckBody struct {
	Data []string `json:"data"`
}

// HTTPTransport 远程投递：POST 表单到 Monitor
type HTTPTransport struct {
	url    string
	token  string
	client *http.Client
}

// NewHTTPTransport 创建 HTTP 投递通道
func NewHTTPTransport(moduleDataURL, token string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{
		url:    moduleDataURL,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// Deliver 200 返回确认 key；413 返回 ErrOverload；网络错误返回 ErrUnreachable；其余状态返回 *StatusError
func (t *HTTPTransport) Deliver(ctx context.Context, batch Batch) (Ack, error) {
	form := url.Values{FormField: {string(batch.Payload)}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, strings.NewReader(form.Encode()))
	if err != nil {
		return Ack{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set(TokenHeader, t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusRequestEntityTooLarge:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Ack{}, ErrOverload
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Ack{}, &StatusError{Code: resp.StatusCode}
	}

	var body AckBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAckBytes)).Decode(&body); err != nil {
		return Ack{}, fmt.Errorf("%w: %v", ErrBadAcknowledgement, err)
	}
	return Ack{Keys: body.Data}, nil
}
