/*
2019 © Postgres.ai
*/

package sqlexec

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"

	"gitlab.com/postgres-ai/database-lab/v2/pkg/log"

	"gitlab.com/postgres-ai/chegar/pkg/util/text"
)

const userAgent = "chegar-sqlexec/1.0"

// statementResponse represents the endpoint answer to a single statement.
type statementResponse struct {
	Rows     []Row  `json:"rows"`
	RowCount int64  `json:"rowCount"`
	Error    string `json:"error"`
}

// batchRequest represents a set of statements executed in one transaction.
type batchRequest struct {
	Transaction []Statement `json:"transaction"`
}

// batchResponse represents the endpoint answer to a transaction.
type batchResponse struct {
	Results []statementResponse `json:"results"`
	Error   string              `json:"error"`
}

// HTTPTransport sends statements to a remote SQL execution endpoint.
type HTTPTransport struct {
	url    *url.URL
	client *http.Client
}

// NewHTTPTransport creates a new transport for the endpoint URL.
func NewHTTPTransport(endpointURL string) (*HTTPTransport, error) {
	if strings.TrimSpace(endpointURL) == "" {
		return nil, errors.New("SQL endpoint URL must not be empty")
	}

	u, err := url.Parse(endpointURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse the SQL endpoint URL")
	}

	t := HTTPTransport{
		url: u,
		client: &http.Client{
			Transport: &http.Transport{},
		},
	}

	return &t, nil
}

// Exec posts a statement to the endpoint.
func (t *HTTPTransport) Exec(ctx context.Context, stmt Statement) (*Result, error) {
	logged, _ := text.CutText(stmt.SQL, maxLoggedStatementLength, "...")
	log.Dbg("SQL endpoint query:", logged)

	resp := statementResponse{}

	if err := t.doPost(ctx, stmt, &resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, &DatabaseError{Message: resp.Error}
	}

	return &Result{Rows: resp.Rows, RowsAffected: resp.RowCount}, nil
}

// ExecBatch posts a transaction to the endpoint. The endpoint applies it atomically.
func (t *HTTPTransport) ExecBatch(ctx context.Context, stmts []Statement) ([]*Result, error) {
	resp := batchResponse{}

	if err := t.doPost(ctx, batchRequest{Transaction: stmts}, &resp); err != nil {
		return nil, err
	}

	if resp.Error != "" {
		return nil, &DatabaseError{Message: resp.Error}
	}

	if len(resp.Results) != len(stmts) {
		return nil, &DatabaseError{
			Message: fmt.Sprintf("endpoint returned %d results for %d statements", len(resp.Results), len(stmts)),
		}
	}

	results := make([]*Result, 0, len(resp.Results))

	for _, r := range resp.Results {
		if r.Error != "" {
			return nil, &DatabaseError{Message: r.Error}
		}

		results = append(results, &Result{Rows: r.Rows, RowsAffected: r.RowCount})
	}

	return results, nil
}

// Close releases idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

func (t *HTTPTransport) doRequest(ctx context.Context, request *http.Request, parser responseParser) error {
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("User-Agent", userAgent)
	request = request.WithContext(ctx)

	response, err := t.client.Do(request)
	if err != nil {
		return errors.Wrap(err, "failed to make a request")
	}

	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(response.Body)
		log.Dbg(fmt.Sprintf("Response: %v", string(body)))

		return &HTTPError{StatusCode: response.StatusCode, Message: errorMessage(body)}
	}

	return parser(response)
}

func (t *HTTPTransport) doPost(ctx context.Context, data interface{}, response interface{}) error {
	reqData, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "failed to marshal request")
	}

	r, err := http.NewRequest(http.MethodPost, t.url.String(), bytes.NewBuffer(reqData))
	if err != nil {
		return errors.Wrap(err, "failed to create a request")
	}

	return t.doRequest(ctx, r, newJSONParser(response))
}

type responseParser func(*http.Response) error

func newJSONParser(v interface{}) responseParser {
	return func(resp *http.Response) error {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return errors.Wrap(err, "failed to decode the endpoint response")
		}

		return nil
	}
}

// errorMessage extracts the "error" field of a JSON body, if any.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}

	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	return payload.Error
}
