package bot

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"QuonkLedger/internal/query"
)

func helpEmbed() *discordgo.MessageEmbed {
	gettingStarted := strings.Join([]string{
		"QuonkBot allows you to paper trade Quonks.",
		"1. Use the `/register` command to get started with a cash balance of $10,000.",
		"2. Use the `/quote` command to get price quotes on stocks.",
		"3. Use the `/buy` command to buy Quonks.",
		"4. Use the `/holdings` command to check the value of your owned Quonks.",
		"5. Use the `/sell` command to sell Quonks.",
	}, "\n")

	whatAreQuonks := strings.Join([]string{
		"Quonks, or Quantum Stonks, are a dream come true. Built with state of the art",
		"science, Quonks are stocks that exist in a simultaneous state of long and",
		"short. With our patented quantum entanglement Quonk technology, Quonks are",
		"short when the current price of the stock is lower than when you last observed",
		"the price, and long when it is higher. This means your Quonks always go up!",
		"You simply can't lose money. Isn't that wonderful?",
	}, " ")

	return &discordgo.MessageEmbed{
		Title: "QuonkBot Help",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Getting Started", Value: gettingStarted},
			{Name: "What are Quonks?", Value: whatAreQuonks},
		},
	}
}

func holdingsEmbed(report query.HoldingsReport) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Your Holdings",
		Color: embedColor,
	}

	if len(report.Rows) > 0 {
		var tickers, quonks, values strings.Builder
		for _, row := range report.Rows {
			fmt.Fprintf(&tickers, "%s\n", row.Ticker)
			fmt.Fprintf(&quonks, "%d\n", row.Shares)
			fmt.Fprintf(&values, "$%s\n", row.Value.Display())
		}
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Ticker", Value: tickers.String(), Inline: true},
			&discordgo.MessageEmbedField{Name: "Quonks", Value: quonks.String(), Inline: true},
			&discordgo.MessageEmbedField{Name: "Value", Value: values.String(), Inline: true},
		)
	}

	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Cash", Value: "$" + report.Cash.Display()},
		&discordgo.MessageEmbedField{Name: "Total Value", Value: "$" + report.Total.Display()},
	)
	return embed
}

func leaderboardEmbed(leaders []query.Leader) *discordgo.MessageEmbed {
	var lines strings.Builder
	for rank, leader := range leaders {
		fmt.Fprintf(&lines, "#%d. <@%d> $%s\n", rank+1, leader.MemberID, leader.NetWorth.Display())
	}
	value := lines.String()
	if value == "" {
		value = "Nobody has registered yet."
	}

	return &discordgo.MessageEmbed{
		Title: "Top Quonkers",
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Cash + Quonk Value", Value: value, Inline: true},
		},
	}
}

// --- interaction response plumbing ---

// respondContent sends an immediate text response.
func (b *Bot) respondContent(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Content: content}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	b.respond(s, i, data)
}

// respondEmbed sends an immediate embed response.
func (b *Bot) respondEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	b.respond(s, i, data)
}

func (b *Bot) respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("interaction respond failed")
	}
}

// respondFailure sends the failure text as an immediate ephemeral reply.
func (b *Bot) respondFailure(s *discordgo.Session, i *discordgo.InteractionCreate, command string, err error) {
	b.metrics.CommandErrors.WithLabelValues(command).Inc()
	b.logger.Warn().Err(err).Str("command", command).Msg("command failed")
	b.respondContent(s, i, userMessage(err), true)
}

// deferResponse acknowledges the interaction so slower work (quotes, the
// ledger) can finish past Discord's three-second deadline.
func (b *Bot) deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) bool {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("interaction defer failed")
		return false
	}
	return true
}

// editContent fills a deferred response with text.
func (b *Bot) editContent(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content})
	if err != nil {
		b.logger.Error().Err(err).Msg("interaction edit failed")
	}
}

// editEmbed fills a deferred response with an embed.
func (b *Bot) editEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	embeds := []*discordgo.MessageEmbed{embed}
	_, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Embeds: &embeds})
	if err != nil {
		b.logger.Error().Err(err).Msg("interaction edit failed")
	}
}

// editFailure fills an ephemeral deferred response with the failure text.
func (b *Bot) editFailure(s *discordgo.Session, i *discordgo.InteractionCreate, command string, err error) {
	b.metrics.CommandErrors.WithLabelValues(command).Inc()
	b.logger.Warn().Err(err).Str("command", command).Msg("command failed")
	b.editContent(s, i, userMessage(err))
}

// failDeferred replaces a publicly deferred response with a private
// failure message: the public stub is deleted and the text follows up
// ephemerally, so rejections stay between the bot and the requester.
func (b *Bot) failDeferred(s *discordgo.Session, i *discordgo.InteractionCreate, command string, err error) {
	b.metrics.CommandErrors.WithLabelValues(command).Inc()
	b.logger.Warn().Err(err).Str("command", command).Msg("command failed")

	if delErr := s.InteractionResponseDelete(i.Interaction); delErr != nil {
		b.logger.Error().Err(delErr).Msg("delete deferred response failed")
	}
	_, fuErr := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: userMessage(err),
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if fuErr != nil {
		b.logger.Error().Err(fuErr).Msg("failure followup failed")
	}
}
