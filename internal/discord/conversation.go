package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"ledgerbot/internal/resolve"
)

// correlationWindow bounds how far back FindTagged scans for the message
// tied to a correlation token.
const correlationWindow = 20

// Conversation adapts the guild session to the resolver's rendering
// surface.
type Conversation struct {
	session session
}

func NewConversation(sess session) *Conversation {
	return &Conversation{session: sess}
}

func (c *Conversation) FindTagged(_ context.Context, channelID, token string) (resolve.MessageRef, bool, error) {
	msgs, err := c.session.ChannelMessages(channelID, correlationWindow, "", "", "")
	if err != nil {
		return resolve.MessageRef{}, false, err
	}
	for _, m := range msgs {
		if m.Interaction != nil && m.Interaction.ID == token {
			return resolve.MessageRef{ChannelID: channelID, MessageID: m.ID}, true, nil
		}
	}
	return resolve.MessageRef{}, false, nil
}

func (c *Conversation) Replace(_ context.Context, ref resolve.MessageRef, text string) error {
	embeds := []*discordgo.MessageEmbed{}
	components := []discordgo.MessageComponent{}
	_, err := c.session.ChannelMessageEditComplex(&discordgo.MessageEdit{
		Channel:    ref.ChannelID,
		ID:         ref.MessageID,
		Content:    &text,
		Embeds:     &embeds,
		Components: &components,
	})
	return err
}

func (c *Conversation) Notify(_ context.Context, channelID, userID, text string) error {
	_, err := c.session.ChannelMessageSend(channelID, "<@"+userID+"> "+text)
	return err
}

func (c *Conversation) Announce(_ context.Context, channelID string, v resolve.Verdict) error {
	var embed *discordgo.MessageEmbed
	switch v.Outcome {
	case resolve.OutcomeSaved:
		embed = successEmbed(v.Snapshot)
	case resolve.OutcomeDuplicate:
		embed = duplicateEmbed(v.Snapshot)
	default:
		return nil
	}
	_, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{embed},
	})
	return err
}
