// Package line adapts the one-to-one messaging platform: webhook events in,
// reply/push messages out. State travels through postback data strings and
// free-text replies instead of components and modals.
package line

import (
	"context"
	"io"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// messenger is the slice of the platform client the adapter uses, narrow
// enough to fake in tests.
type messenger interface {
	Reply(ctx context.Context, replyToken string, messages ...linebot.SendingMessage) error
	Push(ctx context.Context, to string, messages ...linebot.SendingMessage) error
	Content(ctx context.Context, messageID string) (io.ReadCloser, string, int64, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

type botMessenger struct {
	client *linebot.Client
}

func (b botMessenger) Reply(ctx context.Context, replyToken string, messages ...linebot.SendingMessage) error {
	_, err := b.client.ReplyMessage(replyToken, messages...).WithContext(ctx).Do()
	return err
}

func (b botMessenger) Push(ctx context.Context, to string, messages ...linebot.SendingMessage) error {
	_, err := b.client.PushMessage(to, messages...).WithContext(ctx).Do()
	return err
}

func (b botMessenger) Content(ctx context.Context, messageID string) (io.ReadCloser, string, int64, error) {
	resp, err := b.client.GetMessageContent(messageID).WithContext(ctx).Do()
	if err != nil {
		return nil, "", 0, err
	}
	return resp.Content, resp.ContentType, resp.ContentLength, nil
}

func (b botMessenger) DisplayName(ctx context.Context, userID string) (string, error) {
	profile, err := b.client.GetProfile(userID).WithContext(ctx).Do()
	if err != nil {
		return "", err
	}
	return profile.DisplayName, nil
}
