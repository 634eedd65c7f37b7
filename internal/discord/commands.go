package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// RegisterCommands registers the /ocr slash command globally.
func RegisterCommands(s *discordgo.Session, appID string) error {
	_, err := s.ApplicationCommandCreate(appID, "", &discordgo.ApplicationCommand{
		Name:        "ocr",
		Description: "上傳圖片進行文字識別",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionAttachment,
				Name:        "image",
				Description: "要識別的圖片",
				Required:    true,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}
	return nil
}
