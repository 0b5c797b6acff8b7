// Reader is a testing facility to talk to a running http reporter.

package reporter

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"
)

type HttpReader struct {
	baseURL string
	client  *http.Client
}

// NewHttpReader takes the server root, e.g. http://127.0.0.1:8080.
func NewHttpReader(baseURL string) *HttpReader {
	return &HttpReader{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Response is a status code and the raw body.
type Response struct {
	Code int
	Body []byte
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

func (hr *HttpReader) do(req *http.Request) (*Response, error) {
	resp, err := hr.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{Code: resp.StatusCode, Body: body}, nil
}

func (hr *HttpReader) get(route string) (*Response, error) {
	req, err := http.NewRequest(http.MethodGet, hr.baseURL+route, nil)
	if err != nil {
		return nil, err
	}
	return hr.do(req)
}

func (hr *HttpReader) post(route string, body any) (*Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, hr.baseURL+route, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return hr.do(req)
}

func (hr *HttpReader) GetHello() (string, error) {
	resp, err := hr.get(ROUTE_HELLO)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

func (hr *HttpReader) GetStatus(requestId string) (*Response, error) {
	return hr.get(strings.Replace(ROUTE_STATUS, ":requestId", requestId, 1))
}

func (hr *HttpReader) GetMetrics() (*Response, error) {
	return hr.get(ROUTE_METRICS)
}

func (hr *HttpReader) NotifyDeposit(body any) (*Response, error) {
	return hr.post(ROUTE_NOTIFY_DEPOSIT, body)
}

func (hr *HttpReader) NotifyWithdrawal(body any) (*Response, error) {
	return hr.post(ROUTE_NOTIFY_WITHDRAWAL, body)
}

func (hr *HttpReader) RelayerNotifyDeposit(body any) (*Response, error) {
	return hr.post(ROUTE_RELAYER_NOTIFY_DEPOSIT, body)
}

func (hr *HttpReader) RelayerNotifyWithdrawal(body any) (*Response, error) {
	return hr.post(ROUTE_RELAYER_NOTIFY_WITHDRAWAL, body)
}
