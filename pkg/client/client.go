// Package client provides a typed HTTP client for the autograder portal API.
//
// The client holds a session obtained from Login. Any authenticated call that
// comes back 401 or 403 clears the session and reports ErrSessionExpired, so
// callers can route the user back through login.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/campuscode/autograder-api/internal/dto"
	"github.com/campuscode/autograder-api/internal/models"
)

// ErrSessionExpired is returned when the server rejects the session token.
// The client's stored session has already been cleared when this surfaces.
var ErrSessionExpired = errors.New("session expired")

// APIError carries a non-auth error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Session identifies an authenticated portal user.
type Session struct {
	Token  string
	Role   string
	UserID uint
}

// Client talks to the portal API on behalf of one user session.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.Mutex
	session Session

	// OnSessionExpired is invoked after the session has been cleared due to
	// a 401 or 403 response. Optional.
	OnSessionExpired func()
}

// Option customises client construction.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

// New constructs a portal client for the given base URL, e.g.
// "https://grader.example.edu".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session returns a copy of the current session. A zero Token means the
// client is unauthenticated.
func (c *Client) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SetSession installs a previously saved session.
func (c *Client) SetSession(session Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
}

// Login exchanges an identity token for a portal session and stores it on the
// client.
func (c *Client) Login(ctx context.Context, identityToken string) (Session, error) {
	body, err := json.Marshal(dto.LoginRequest{Token: identityToken})
	if err != nil {
		return Session{}, err
	}

	var payload dto.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", "application/json", bytes.NewReader(body), &payload, false); err != nil {
		return Session{}, err
	}

	session := Session{Token: payload.AccessToken, Role: payload.Role, UserID: payload.UserID}
	c.SetSession(session)
	return session, nil
}

// StudentClasses lists the classes the student is enrolled in.
func (c *Client) StudentClasses(ctx context.Context) (dto.ClassListResponse, error) {
	var payload dto.ClassListResponse
	err := c.do(ctx, http.MethodGet, "/api/student/classes", "", nil, &payload, true)
	return payload, err
}

// StudentClassQuestions lists the questions of one enrolled class.
func (c *Client) StudentClassQuestions(ctx context.Context, classID uint) (dto.QuestionListResponse, error) {
	var payload dto.QuestionListResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/student/class/%d", classID), "", nil, &payload, true)
	return payload, err
}

// StudentQuestion fetches the student view of a question, including the
// submission state and, once graded, the score and feedback.
func (c *Client) StudentQuestion(ctx context.Context, classID, questionID uint) (dto.StudentQuestionDetail, error) {
	var payload dto.StudentQuestionDetail
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/student/class/%d/%d", classID, questionID), "", nil, &payload, true)
	return payload, err
}

// TestRun uploads a source file for an ephemeral run against the question's
// test cases. previousFilename, when non-empty, names the file from an
// earlier upload so a scratch artifact in another language can be retired.
func (c *Client) TestRun(ctx context.Context, questionID uint, filename string, source io.Reader, previousFilename string) (dto.TestRunResponse, error) {
	var payload dto.TestRunResponse
	err := c.upload(ctx, fmt.Sprintf("/api/student/run/%d", questionID), filename, source, previousFilename, &payload)
	return payload, err
}

// Submit records the student's one final submission for the question.
func (c *Client) Submit(ctx context.Context, questionID uint, filename string, source io.Reader, previousFilename string) error {
	return c.upload(ctx, fmt.Sprintf("/api/student/submission/%d", questionID), filename, source, previousFilename, nil)
}

// InstructorClasses lists the classes the instructor owns.
func (c *Client) InstructorClasses(ctx context.Context) (dto.ClassListResponse, error) {
	var payload dto.ClassListResponse
	err := c.do(ctx, http.MethodGet, "/api/instructor/classes", "", nil, &payload, true)
	return payload, err
}

// InstructorQuestions lists the questions of a class the instructor owns.
func (c *Client) InstructorQuestions(ctx context.Context, classID uint) (dto.QuestionListResponse, error) {
	var payload dto.QuestionListResponse
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/instructor/class/%d", classID), "", nil, &payload, true)
	return payload, err
}

// CreateQuestion opens a new question in the class.
func (c *Client) CreateQuestion(ctx context.Context, classID uint, request dto.QuestionCreateRequest) (dto.QuestionSummary, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return dto.QuestionSummary{}, err
	}

	var payload dto.QuestionSummary
	err = c.do(ctx, http.MethodPost, fmt.Sprintf("/api/instructor/class/%d/question", classID), "application/json", bytes.NewReader(body), &payload, true)
	return payload, err
}

// InstructorQuestion fetches the instructor view of a question, including the
// plagiarism report once the question has been evaluated.
func (c *Client) InstructorQuestion(ctx context.Context, classID, questionID uint) (dto.InstructorQuestionDetail, error) {
	var payload dto.InstructorQuestionDetail
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/instructor/class/%d/%d", classID, questionID), "", nil, &payload, true)
	return payload, err
}

// Evaluate grades all submissions of the question, produces the plagiarism
// report, and closes the question.
func (c *Client) Evaluate(ctx context.Context, questionID uint) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/instructor/evaluate/%d", questionID), "", nil, nil, true)
}

func (c *Client) upload(ctx context.Context, path, filename string, source io.Reader, previousFilename string, out interface{}) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, source); err != nil {
		return err
	}

	if stale := staleFilename(previousFilename, filename); stale != "" {
		if err := writer.WriteField("old_filename", stale); err != nil {
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return err
	}

	return c.do(ctx, http.MethodPost, path, writer.FormDataContentType(), &buf, out, true)
}

// staleFilename returns previous when it names a different language than
// current, signalling the server to retire the earlier artifact.
func staleFilename(previous, current string) string {
	previous = strings.TrimSpace(previous)
	if previous == "" {
		return ""
	}

	previousLang, err := models.LanguageFromFilename(previous)
	if err != nil {
		return ""
	}
	currentLang, err := models.LanguageFromFilename(current)
	if err != nil || previousLang == currentLang {
		return ""
	}
	return previous
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}, authenticated bool) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authenticated {
		session := c.Session()
		if session.Token == "" {
			return ErrSessionExpired
		}
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if authenticated && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
		c.expireSession()
		return ErrSessionExpired
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}

func (c *Client) expireSession() {
	c.mu.Lock()
	c.session = Session{}
	hook := c.OnSessionExpired
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
}
