package poster

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "announcebot/pkg/logx"
)

type TelegramConfig struct {
	Token string
	// Chat is a numeric chat id or a public channel "@username".
	Chat           string
	ParseMode      string
	DisablePreview bool
	// APIURL overrides the Bot API endpoint (tests, local bot api server).
	APIURL  string
	Timeout time.Duration
}

type Telegram struct {
	cfg  TelegramConfig
	log  logx.Logger
	bot  *tele.Bot
	to   chatRecipient
	link string
}

type chatRecipient string

func (c chatRecipient) Recipient() string { return string(c) }

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	chat := strings.TrimSpace(cfg.Chat)
	if chat == "" {
		return nil, errors.New("telegram chat is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	// Offline skips the getMe round trip at construction; HealthCheck does it instead.
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.APIURL,
		Token:   cfg.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}

	t := &Telegram{cfg: cfg, log: log, bot: b, to: chatRecipient(chat)}
	if strings.HasPrefix(chat, "@") {
		t.link = "https://t.me/" + strings.TrimPrefix(chat, "@") + "/"
	}
	return t, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Send publishes content as one message. The request is not cancelled once
// dispatched; the HTTP client timeout bounds it.
func (t *Telegram) Send(ctx context.Context, content string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, transient(err)
	}
	if strings.TrimSpace(content) == "" {
		return Result{}, rejected(ErrEmptyContent)
	}

	msg, err := t.bot.Send(t.to, content, &tele.SendOptions{
		ParseMode:             t.cfg.ParseMode,
		DisableWebPagePreview: t.cfg.DisablePreview,
	})
	if err != nil {
		return Result{}, classifyTelegram(err)
	}

	res := Result{ExternalID: strconv.Itoa(msg.ID), SentAt: time.Now().UTC()}
	if msg.Unixtime > 0 {
		res.SentAt = msg.Time().UTC()
	}
	if t.link != "" {
		res.URL = t.link + res.ExternalID
	}
	return res, nil
}

// HealthCheck verifies the token with getMe.
func (t *Telegram) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.bot.Raw("getMe", nil)
	return err
}

func classifyTelegram(err error) error {
	var flood *tele.FloodError
	if errors.As(err, &flood) && flood != nil {
		return rateLimited(err, time.Duration(flood.RetryAfter)*time.Second)
	}

	code := 0
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		code = apiErr.Code
	} else {
		// Unknown API errors only carry the code in the text: "telegram: <desc> (<code>)".
		msg := err.Error()
		for _, c := range []int{400, 403, 429} {
			if strings.HasSuffix(msg, "("+strconv.Itoa(c)+")") {
				code = c
				break
			}
		}
	}

	switch code {
	case http.StatusTooManyRequests:
		return rateLimited(err, retryAfterHint(err.Error()))
	case http.StatusBadRequest, http.StatusForbidden:
		return rejected(err)
	default:
		return transient(err)
	}
}

var reRetryAfter = regexp.MustCompile(`retry after (\d+)`)

func retryAfterHint(msg string) time.Duration {
	m := reRetryAfter.FindStringSubmatch(msg)
	if len(m) != 2 {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return time.Duration(n) * time.Second
}
