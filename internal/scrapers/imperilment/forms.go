package imperilment

import (
	"bytes"
	"context"
	"fmt"
	"imperilment-submitter/internal/components/chrono"
	"imperilment-submitter/pkg/htmlutil"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/go-resty/resty/v2"
)

const (
	report_client_login           = "client.login"
	report_client_create_game     = "client.create-game"
	report_client_create_category = "client.create-category"
	report_client_create_answer   = "client.create-answer"
)

const (
	pathSignIn      = "/users/sign_in"
	pathNewGame     = "/games/new"
	pathGames       = "/games"
	pathNewCategory = "/categories/new"
	pathCategories  = "/categories"

	resourceGames      = "games"
	resourceCategories = "categories"

	tokenField           = "authenticity_token"
	rememberMe           = "1"
	commitSignIn         = "Sign in"
	commitCreateGame     = "Create Game"
	commitCreateCategory = "Create Category"
)

func answersPath(gameId uint64) string {
	return fmt.Sprintf("/games/%d/answers", gameId)
}

func newAnswerPath(gameId uint64) string {
	return answersPath(gameId) + "/new"
}

// submitForm fetches the page at `formPath` for a fresh anti-forgery token, then posts
// `fields` plus the token to `postPath`. The session is threaded through both requests.
func (c *Client) submitForm(
	ctx context.Context,
	session Session,
	formPath, postPath string,
	fields url.Values,
) (*resty.Response, Session, error) {
	res, session, err := c.Get(ctx, formPath, session)
	if err != nil {
		return nil, session, err
	}
	token, err := ExtractToken(res.Body())
	if err != nil {
		return nil, session, fmt.Errorf("GET %s (status %d): %w", formPath, res.StatusCode(), err)
	}

	form := url.Values{tokenField: {token}}
	for k, v := range fields {
		form[k] = v
	}
	return c.Post(ctx, postPath, form, session)
}

// Login signs in with a fresh session and returns the authenticated session.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	c.tel.ReportDebug(report_client_login, username)

	res, session, err := c.submitForm(ctx, Session{}, pathSignIn, pathSignIn, url.Values{
		"user[email]":       {username},
		"user[password]":    {password},
		"user[remember_me]": {rememberMe},
		"commit":            {commitSignIn},
	})
	if err != nil {
		c.tel.ReportBroken(report_client_login, err, username)
		return Session{}, err
	}

	if !isRedirect(res) {
		err := fmt.Errorf(
			"%w: sign in answered %d without redirecting%s",
			ErrAuthenticationFailed, res.StatusCode(), rejectionDetail(res),
		)
		c.tel.ReportWarning(report_client_login, err, username)
		return Session{}, err
	}
	if len(res.Cookies()) == 0 {
		err := fmt.Errorf("%w: sign in did not issue a session cookie", ErrAuthenticationFailed)
		c.tel.ReportWarning(report_client_login, err, username)
		return Session{}, err
	}
	if strings.HasSuffix(strings.TrimRight(res.Header().Get("Location"), "/"), pathSignIn) {
		err := fmt.Errorf("%w: sign in redirected back to the sign in page", ErrAuthenticationFailed)
		c.tel.ReportWarning(report_client_login, err, username)
		return Session{}, err
	}

	return session, nil
}

// CreateGame creates a game ending on `endedAt` and returns its id.
func (c *Client) CreateGame(ctx context.Context, session Session, endedAt chrono.Date) (uint64, Session, error) {
	c.tel.ReportDebug(report_client_create_game, endedAt.String())

	res, session, err := c.submitForm(ctx, session, pathNewGame, pathGames, url.Values{
		"game[ended_at]": {endedAt.String()},
		"commit":         {commitCreateGame},
	})
	if err != nil {
		c.tel.ReportBroken(report_client_create_game, err)
		return 0, session, err
	}

	id, err := c.createdId(res, resourceGames)
	if err != nil {
		c.tel.ReportBroken(report_client_create_game, err, endedAt.String())
		return 0, session, err
	}
	return id, session, nil
}

// CreateCategory creates a category called `name` and returns its id.
func (c *Client) CreateCategory(ctx context.Context, session Session, name string) (uint64, Session, error) {
	c.tel.ReportDebug(report_client_create_category, name)

	res, session, err := c.submitForm(ctx, session, pathNewCategory, pathCategories, url.Values{
		"category[name]": {name},
		"commit":         {commitCreateCategory},
	})
	if err != nil {
		c.tel.ReportBroken(report_client_create_category, err, name)
		return 0, session, err
	}

	id, err := c.createdId(res, resourceCategories)
	if err != nil {
		c.tel.ReportBroken(report_client_create_category, err, name)
		return 0, session, err
	}
	return id, session, nil
}

// AnswerForm is a single clue scheduled under a game and category.
type AnswerForm struct {
	GameId     uint64
	CategoryId uint64
	Answer     string
	Question   string
	Amount     int
	StartDate  chrono.Date
}

func (f AnswerForm) values() url.Values {
	return url.Values{
		"answer[category_id]":      {strconv.FormatUint(f.CategoryId, 10)},
		"answer[answer]":           {f.Answer},
		"answer[correct_question]": {f.Question},
		"answer[amount]":           {strconv.Itoa(f.Amount)},
		"answer[start_date]":       {f.StartDate.String()},
	}
}

// CreateAnswer creates a clue under its game and category.
func (c *Client) CreateAnswer(ctx context.Context, session Session, form AnswerForm) (Session, error) {
	c.tel.ReportDebug(report_client_create_answer, form.GameId, form.CategoryId, form.StartDate.String())

	res, session, err := c.submitForm(
		ctx, session,
		newAnswerPath(form.GameId), answersPath(form.GameId),
		form.values(),
	)
	if err != nil {
		c.tel.ReportBroken(report_client_create_answer, err, form.GameId, form.CategoryId)
		return session, err
	}

	if !isRedirect(res) {
		err := fmt.Errorf(
			"%w: POST %s answered %d%s",
			ErrSubmissionRejected, answersPath(form.GameId), res.StatusCode(), rejectionDetail(res),
		)
		c.tel.ReportWarning(report_client_create_answer, err, form.GameId, form.CategoryId)
		return session, err
	}
	return session, nil
}

func (c *Client) createdId(res *resty.Response, resource string) (uint64, error) {
	location := res.Header().Get("Location")
	if !isRedirect(res) {
		return 0, fmt.Errorf(
			"%w: %s creation answered %d without redirecting%s",
			ErrIdExtractionFailed, resource, res.StatusCode(), rejectionDetail(res),
		)
	}
	got, id, err := ParseCreatedLocation(location, c.baseUrl)
	if err != nil {
		return 0, err
	}
	if got != resource {
		return 0, fmt.Errorf(
			"%w: expected a redirect to %s, got %q",
			ErrIdExtractionFailed, resource, location,
		)
	}
	return id, nil
}

var rejectionMatcher = cascadia.MustCompile("#error_explanation li, .field_with_errors .error, .alert, .flash")

// rejectionDetail pulls the validation messages out of a re-rendered form so
// the returned error says why the remote refused a submission.
func rejectionDetail(res *resty.Response) string {
	body := res.Body()
	if len(body) == 0 {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	messages := htmlutil.Texts(doc.FindMatcher(rejectionMatcher))
	if len(messages) == 0 {
		return ""
	}
	return fmt.Sprintf(" (%s)", strings.Join(messages, "; "))
}
