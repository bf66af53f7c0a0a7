package sheets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultTimeout = 60 * time.Second
	DefaultSender  = "pacotes-bot"
)

var (
	successMarkers   = [][]string{{"sucesso"}, {"success"}}
	duplicateMarkers = [][]string{{"duplicado"}, {"duplicate"}, {"já", "existe"}, {"ja", "existe"}}

	// negations cancel a marker when they appear in the two words before it.
	negations = map[string]bool{
		"não": true, "nao": true, "sem": true, "nunca": true,
		"not": true, "no": true, "without": true, "never": true,
	}
)

// Recorder observes the outcome of every submission.
type Recorder interface {
	SubmissionFinished(kind Kind, reference string, outcome Outcome, elapsed time.Duration)
}

// Recorders fans one outcome out to several recorders.
type Recorders []Recorder

func (r Recorders) SubmissionFinished(kind Kind, reference string, outcome Outcome, elapsed time.Duration) {
	for _, rec := range r {
		rec.SubmissionFinished(kind, reference, outcome, elapsed)
	}
}

// Options configures a Client.
type Options struct {
	OrdersURL   string
	PaymentsURL string
	Token       string
	Sender      string
	Timeout     time.Duration
	RatePerSec  float64
	Recorder    Recorder
}

// Client posts order and payment records to the spreadsheet endpoints.
type Client struct {
	OrdersURL   string
	PaymentsURL string
	Token       string
	Sender      string
	HTTPClient  *http.Client

	limiter  *rate.Limiter
	recorder Recorder
	now      func() time.Time
}

func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Sender == "" {
		opts.Sender = DefaultSender
	}
	limit := rate.Inf
	if opts.RatePerSec > 0 {
		limit = rate.Limit(opts.RatePerSec)
	}

	return &Client{
		OrdersURL:   strings.TrimSpace(opts.OrdersURL),
		PaymentsURL: strings.TrimSpace(opts.PaymentsURL),
		Token:       opts.Token,
		Sender:      opts.Sender,
		HTTPClient: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter:  rate.NewLimiter(limit, 1),
		recorder: opts.Recorder,
		now:      time.Now,
	}
}

// SubmitOrder records a data order of amount MB.
func (c *Client) SubmitOrder(ctx context.Context, reference string, amount int, phone, groupID string) error {
	req := SubmissionRequest{
		GroupID:   groupID,
		Timestamp: c.now().UTC().Format(time.RFC3339),
		Record:    FormatRecord(reference, strconv.Itoa(amount), phone),
		Sender:    c.Sender,
		Message:   fmt.Sprintf("Pedido %s: %dMB para %s", reference, amount, phone),
	}
	return c.submit(ctx, KindOrder, c.OrdersURL, reference, req)
}

// SubmitPayment records a payment of price for the same reference.
func (c *Client) SubmitPayment(ctx context.Context, reference string, price float64, phone, groupID string) error {
	value := strconv.FormatFloat(price, 'f', -1, 64)
	req := SubmissionRequest{
		GroupID:   groupID,
		Timestamp: c.now().UTC().Format(time.RFC3339),
		Record:    FormatRecord(reference, value, phone),
		Sender:    c.Sender,
		Message:   fmt.Sprintf("Pagamento %s: %sMT de %s", reference, value, phone),
	}
	return c.submit(ctx, KindPayment, c.PaymentsURL, reference, req)
}

// FormatRecord builds the pipe-delimited record the sheets parse.
func FormatRecord(reference, value, phone string) string {
	return reference + "|" + value + "|" + phone
}

func (c *Client) submit(ctx context.Context, kind Kind, url, reference string, body SubmissionRequest) error {
	start := time.Now()
	outcome, err := c.send(ctx, kind, url, reference, body)
	if c.recorder != nil {
		c.recorder.SubmissionFinished(kind, reference, outcome, time.Since(start))
	}
	return err
}

func (c *Client) send(ctx context.Context, kind Kind, url, reference string, body SubmissionRequest) (Outcome, error) {
	if url == "" {
		return OutcomeFailed, &SubmissionError{Kind: kind, Reference: reference, Err: errors.New("endpoint not configured")}
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return OutcomeFailed, &SubmissionError{Kind: kind, Reference: reference, Err: err}
	}

	respBody, status, err := c.doRequest(ctx, url, body)
	if err != nil {
		return OutcomeFailed, &SubmissionError{Kind: kind, Reference: reference, StatusCode: status, Err: err}
	}
	if status >= 400 {
		return OutcomeFailed, &SubmissionError{Kind: kind, Reference: reference, StatusCode: status, Body: truncate(respBody)}
	}

	outcome, detail := Classify(respBody)
	switch outcome {
	case OutcomeRecorded:
		log.Debug().Str("kind", string(kind)).Str("reference", reference).Msg("Submission recorded")
		return outcome, nil
	case OutcomeDuplicate:
		log.Warn().Str("kind", string(kind)).Str("reference", reference).Str("existing", detail).
			Msg("Submission already recorded downstream, treating as success")
		return outcome, nil
	default:
		return outcome, &SubmissionError{
			Kind:       kind,
			Reference:  reference,
			StatusCode: status,
			Body:       truncate(respBody),
			Err:        errors.New("unrecognized response"),
		}
	}
}

func (c *Client) doRequest(ctx context.Context, url string, body any) ([]byte, int, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())
	if c.Token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

// Classify interprets an endpoint reply. JSON replies are read by field;
// anything else is matched against the text markers. The second return
// value carries the downstream status of an existing record, if any.
func Classify(body []byte) (Outcome, string) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var resp SubmissionResponse
		if err := json.Unmarshal(trimmed, &resp); err == nil {
			switch {
			case resp.Duplicate:
				return OutcomeDuplicate, resp.ExistingStatus
			case resp.Success:
				return OutcomeRecorded, ""
			default:
				return OutcomeFailed, resp.Message
			}
		}
	}

	words := splitWords(string(trimmed))
	for _, marker := range duplicateMarkers {
		if hasMarker(words, marker) {
			return OutcomeDuplicate, ""
		}
	}
	for _, marker := range successMarkers {
		if hasMarker(words, marker) {
			return OutcomeRecorded, ""
		}
	}
	return OutcomeFailed, ""
}

func splitWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hasMarker reports whether marker occurs as whole words in words and is not
// negated. "insucesso" or "unsuccessful" never match "sucesso"/"success".
func hasMarker(words, marker []string) bool {
	for i := 0; i+len(marker) <= len(words); i++ {
		matched := true
		for j, w := range marker {
			if words[i+j] != w {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		negated := false
		for k := i - 1; k >= 0 && k >= i-2; k-- {
			if negations[words[k]] {
				negated = true
				break
			}
		}
		if !negated {
			return true
		}
	}
	return false
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
