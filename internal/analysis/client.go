package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// RemoteEngine — HTTP-клиент внешнего движка детекции. Реализует
// Engine и Reporter поверх одного base URL.
type RemoteEngine struct {
	baseURL string
	client  *http.Client
}

// NewRemoteEngine создает клиент движка. Таймаут клиента не ставим:
// дедлайн задаёт контекст вызывающего.
func NewRemoteEngine(baseURL string) *RemoteEngine {
	return &RemoteEngine{
		baseURL: baseURL,
		client:  &http.Client{},
	}
}

// Analyze запускает детекцию по каталогу снимков.
func (e *RemoteEngine) Analyze(ctx context.Context, dir string) (*Result, error) {
	const op = "analysis.RemoteEngine.Analyze"

	var res Result
	if err := e.post(ctx, "/analyze", map[string]string{"dir": dir}, &res); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &res, nil
}

// Render запрашивает рендер отчётов по результатам детекции.
func (e *RemoteEngine) Render(ctx context.Context, id string, res *Result) (*ReportPaths, error) {
	const op = "analysis.RemoteEngine.Render"

	body := struct {
		ID     string  `json:"id"`
		Result *Result `json:"result"`
	}{ID: id, Result: res}

	var paths ReportPaths
	if err := e.post(ctx, "/report", body, &paths); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &paths, nil
}

func (e *RemoteEngine) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Тело ошибки читаем ограниченно: движок может вернуть что угодно.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("engine returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

var _ Engine = (*RemoteEngine)(nil)
var _ Reporter = (*RemoteEngine)(nil)
