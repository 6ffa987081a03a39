package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prepstream/shipment-relay/internal/model"
)

// Notification is what a provider delivers: a claimed outbound message plus
// its kind so the receiving side can route/render it.
type Notification struct {
	MessageID  string            `json:"message_id"`
	Kind       model.MessageKind `json:"kind"`
	Parameters json.RawMessage   `json:"parameters"`
}

type Provider interface {
	Name() string
	Ready() bool
	Acquire() bool
	Send(ctx context.Context, n Notification) error
}

// HTTPProvider posts notifications to an external bridge endpoint (chat bot,
// ops webhook receiver) behind a micro circuit breaker.
type HTTPProvider struct {
	name    string
	baseURL string
	path    string
	client  *http.Client
	br      *MicroBreaker
}

func NewHTTPProvider(name, baseURL, path string, timeoutMs, failThreshold, openForMs int) *HTTPProvider {
	if timeoutMs <= 0 {
		timeoutMs = 3000
	}

	if failThreshold <= 0 {
		failThreshold = 3
	}

	if openForMs <= 0 {
		openForMs = 15000
	}

	return &HTTPProvider{
		name:    name,
		baseURL: baseURL,
		path:    path,
		client:  &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		br:      NewMicroBreaker(failThreshold, time.Duration(openForMs)*time.Millisecond),
	}
}

func (p *HTTPProvider) Name() string  { return p.name }
func (p *HTTPProvider) Ready() bool   { return p.br.Ready() }
func (p *HTTPProvider) Acquire() bool { return p.br.TryAcquire() }

func (p *HTTPProvider) Send(ctx context.Context, n Notification) error {
	if err := p.post(ctx, n); err != nil {
		p.br.OnFailure()
		return err
	}

	p.br.OnSuccess()

	return nil
}

func (p *HTTPProvider) post(ctx context.Context, n Notification) error {
	b, _ := json.Marshal(n)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+p.path, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}

	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("provider=%s status=%d", p.name, res.StatusCode)
	}

	return nil
}
