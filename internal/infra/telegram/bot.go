package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/goblin987/ultramaxgoodbot/internal/domain/enums"
)

type Bot struct {
	api            *tgbotapi.BotAPI
	httpClient     *http.Client
	maxConcurrency int
}

type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard, one slice per row.
type Keyboard [][]Button

func Row(buttons ...Button) []Button {
	return buttons
}

// Media is either an already uploaded telegram file or a stream to upload.
type Media struct {
	Kind    enums.MediaKind
	FileID  string
	Name    string
	Reader  io.Reader
	Caption string
}

type CommandUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	Command  string
	Args     string
}

type TextUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

type CallbackUpdate struct {
	CallbackID string
	ChatID     int64
	MessageID  int
	UserID     int64
	Username   string
	Data       string
}

type MediaUpdate struct {
	ChatID  int64
	UserID  int64
	Kind    enums.MediaKind
	FileID  string
	Caption string
}

type Handlers struct {
	OnCommand  func(context.Context, CommandUpdate) error
	OnText     func(context.Context, TextUpdate) error
	OnCallback func(context.Context, CallbackUpdate) error
	OnMedia    func(context.Context, MediaUpdate) error
	OnError    func(error)
}

func NewBot(token string, maxConcurrency int) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	return &Bot{
		api: api,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxConcurrency: maxConcurrency,
	}, nil
}

// Listen long-polls updates and handles up to maxConcurrency of them at once.
// It returns after ctx is cancelled and in-flight handlers finish.
func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	sem := make(chan struct{}, b.maxConcurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			wg.Add(1)
			go func(update tgbotapi.Update) {
				defer wg.Done()
				defer func() { <-sem }()
				defer func() {
					if r := recover(); r != nil && handlers.OnError != nil {
						handlers.OnError(fmt.Errorf("telegram handler panic: %v", r))
					}
				}()
				if err := dispatch(ctx, update, handlers); err != nil && handlers.OnError != nil {
					handlers.OnError(err)
				}
			}(update)
		}
	}
}

func dispatch(ctx context.Context, update tgbotapi.Update, handlers Handlers) error {
	if msg := update.Message; msg != nil && msg.From != nil {
		if media, ok := mediaFromMessage(msg); ok && handlers.OnMedia != nil {
			return handlers.OnMedia(ctx, media)
		}

		if msg.IsCommand() && handlers.OnCommand != nil {
			return handlers.OnCommand(ctx, CommandUpdate{
				ChatID:   msg.Chat.ID,
				UserID:   msg.From.ID,
				Username: msg.From.UserName,
				Command:  msg.Command(),
				Args:     msg.CommandArguments(),
			})
		}

		text := strings.TrimSpace(msg.Text)
		if text != "" && handlers.OnText != nil {
			return handlers.OnText(ctx, TextUpdate{
				ChatID:   msg.Chat.ID,
				UserID:   msg.From.ID,
				Username: msg.From.UserName,
				Text:     text,
			})
		}
		return nil
	}

	if cb := update.CallbackQuery; cb != nil && cb.From != nil && handlers.OnCallback != nil {
		out := CallbackUpdate{
			CallbackID: cb.ID,
			UserID:     cb.From.ID,
			Username:   cb.From.UserName,
			Data:       cb.Data,
		}
		if cb.Message != nil {
			out.ChatID = cb.Message.Chat.ID
			out.MessageID = cb.Message.MessageID
		}
		return handlers.OnCallback(ctx, out)
	}
	return nil
}

func mediaFromMessage(msg *tgbotapi.Message) (MediaUpdate, bool) {
	out := MediaUpdate{
		ChatID:  msg.Chat.ID,
		UserID:  msg.From.ID,
		Caption: msg.Caption,
	}
	switch {
	case len(msg.Photo) > 0:
		out.Kind = enums.MediaKindPhoto
		out.FileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Animation != nil:
		out.Kind = enums.MediaKindAnimation
		out.FileID = msg.Animation.FileID
	case msg.Video != nil:
		out.Kind = enums.MediaKindVideo
		out.FileID = msg.Video.FileID
	default:
		return MediaUpdate{}, false
	}
	return out, true
}

func (b *Bot) SendText(ctx context.Context, chatID int64, text string, keyboard Keyboard) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if len(keyboard) > 0 {
		msg.ReplyMarkup = inlineKeyboard(keyboard)
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// SendMediaGroup sends photos and videos as one album. Telegram albums need
// at least two items, so a single item goes out as a plain photo or video.
func (b *Bot) SendMediaGroup(ctx context.Context, chatID int64, items []Media) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if len(items) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(items) == 1 {
		return b.sendSingle(chatID, items[0])
	}

	group := make([]interface{}, 0, len(items))
	for _, item := range items {
		switch item.Kind {
		case enums.MediaKindPhoto:
			m := tgbotapi.NewInputMediaPhoto(requestFile(item))
			m.Caption = item.Caption
			group = append(group, m)
		case enums.MediaKindVideo:
			m := tgbotapi.NewInputMediaVideo(requestFile(item))
			m.Caption = item.Caption
			group = append(group, m)
		default:
			return fmt.Errorf("media kind %s cannot be grouped", item.Kind)
		}
	}

	if _, err := b.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, group)); err != nil {
		return fmt.Errorf("send telegram media group: %w", err)
	}
	return nil
}

func (b *Bot) sendSingle(chatID int64, item Media) error {
	var cfg tgbotapi.Chattable
	switch item.Kind {
	case enums.MediaKindPhoto:
		photo := tgbotapi.NewPhoto(chatID, requestFile(item))
		photo.Caption = item.Caption
		cfg = photo
	case enums.MediaKindVideo:
		video := tgbotapi.NewVideo(chatID, requestFile(item))
		video.Caption = item.Caption
		cfg = video
	default:
		return fmt.Errorf("media kind %s cannot be grouped", item.Kind)
	}
	if _, err := b.api.Send(cfg); err != nil {
		return fmt.Errorf("send telegram %s: %w", item.Kind, err)
	}
	return nil
}

func (b *Bot) SendAnimation(ctx context.Context, chatID int64, item Media) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := tgbotapi.NewAnimation(chatID, requestFile(item))
	cfg.Caption = item.Caption
	if _, err := b.api.Send(cfg); err != nil {
		return fmt.Errorf("send telegram animation: %w", err)
	}
	return nil
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if strings.TrimSpace(callbackID) == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	cfg := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// DownloadFile streams a telegram file; the caller closes the body.
func (b *Bot) DownloadFile(ctx context.Context, fileID string) (io.ReadCloser, int64, string, error) {
	if b == nil || b.api == nil {
		return nil, 0, "", fmt.Errorf("telegram bot is not initialized")
	}
	if strings.TrimSpace(fileID) == "" {
		return nil, 0, "", fmt.Errorf("file id is required")
	}

	tgFile, err := b.api.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, 0, "", fmt.Errorf("get telegram file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tgFile.Link(b.api.Token), nil)
	if err != nil {
		return nil, 0, "", fmt.Errorf("create file request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, 0, "", fmt.Errorf("download telegram file: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, 0, "", fmt.Errorf("unexpected telegram file status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	return resp.Body, resp.ContentLength, contentType, nil
}

// RetryAfter extracts telegram's flood-control delay from a send error.
func RetryAfter(err error) time.Duration {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

func requestFile(item Media) tgbotapi.RequestFileData {
	if item.Reader != nil {
		name := item.Name
		if name == "" {
			name = string(item.Kind)
		}
		return tgbotapi.FileReader{Name: name, Reader: item.Reader}
	}
	return tgbotapi.FileID(item.FileID)
}

func inlineKeyboard(keyboard Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(btn.Text, btn.Data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
