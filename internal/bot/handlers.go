package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"QuonkLedger/internal/ledger"
	"QuonkLedger/internal/money"
	"QuonkLedger/internal/quote"
)

func (b *Bot) handleHelp(s *discordgo.Session, i *discordgo.InteractionCreate) {
	b.respondEmbed(s, i, helpEmbed(), false)
}

func (b *Bot) handleRegister(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	memberID, err := interactionMemberID(i)
	if err == nil {
		err = b.store.Register(ctx, memberID)
	}
	if err != nil {
		b.respondFailure(s, i, "register", err)
		return
	}

	b.metrics.Registrations.Inc()
	b.respondContent(s, i, fmt.Sprintf("Successfully registered user: <@%d>", memberID), false)
}

func (b *Bot) handleQuote(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.deferResponse(s, i, true) {
		return
	}

	ticker := optionTicker(i)
	price, err := b.lookupQuote(ctx, ticker)
	if err != nil {
		b.editFailure(s, i, "quote", err)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: ticker,
		Color: embedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Price", Value: "$" + price.Display()},
		},
	}
	b.editEmbed(s, i, embed)
}

func (b *Bot) handleHoldings(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.deferResponse(s, i, true) {
		return
	}

	memberID, err := interactionMemberID(i)
	if err != nil {
		b.editFailure(s, i, "holdings", err)
		return
	}

	report, err := b.queries.Holdings(ctx, memberID)
	if err != nil {
		b.editFailure(s, i, "holdings", err)
		return
	}
	b.editEmbed(s, i, holdingsEmbed(report))
}

func (b *Bot) handleBuy(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.deferResponse(s, i, false) {
		return
	}

	memberID, err := interactionMemberID(i)
	if err != nil {
		b.failDeferred(s, i, "buy", err)
		return
	}
	if err := b.store.RequireExists(ctx, memberID); err != nil {
		b.failDeferred(s, i, "buy", err)
		return
	}

	ticker := optionTicker(i)
	shares := optionShares(i)

	price, err := b.lookupQuote(ctx, ticker)
	if err != nil {
		b.failDeferred(s, i, "buy", err)
		return
	}

	receipt, err := b.engine.Buy(ctx, memberID, ticker, shares, price)
	if err != nil {
		b.metrics.TradesRejected.WithLabelValues(ledger.KindOf(err).String()).Inc()
		b.failDeferred(s, i, "buy", err)
		return
	}

	b.metrics.TradesExecuted.WithLabelValues("buy").Inc()
	b.metrics.TradeVolume.WithLabelValues("buy").Add(receipt.Cost.Float64())
	b.logger.Info().
		Int64("member", memberID).
		Str("ticker", ticker).
		Int64("shares", shares).
		Stringer("price", price).
		Stringer("trade_id", receipt.TradeID).
		Msg("buy settled")

	b.editContent(s, i, fmt.Sprintf("<@%d> bought %d quonks of $%s @ $%s.",
		memberID, shares, ticker, price.Display()))
}

func (b *Bot) handleSell(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if !b.deferResponse(s, i, false) {
		return
	}

	memberID, err := interactionMemberID(i)
	if err != nil {
		b.failDeferred(s, i, "sell", err)
		return
	}
	if err := b.store.RequireExists(ctx, memberID); err != nil {
		b.failDeferred(s, i, "sell", err)
		return
	}

	ticker := optionTicker(i)
	shares := optionShares(i)

	price, err := b.lookupQuote(ctx, ticker)
	if err != nil {
		b.failDeferred(s, i, "sell", err)
		return
	}

	receipt, err := b.engine.Sell(ctx, memberID, ticker, shares, price)
	if err != nil {
		b.metrics.TradesRejected.WithLabelValues(ledger.KindOf(err).String()).Inc()
		b.failDeferred(s, i, "sell", err)
		return
	}

	b.metrics.TradesExecuted.WithLabelValues("sell").Inc()
	b.metrics.TradeVolume.WithLabelValues("sell").Add(receipt.Proceeds.Float64())
	b.logger.Info().
		Int64("member", memberID).
		Str("ticker", ticker).
		Int64("shares", shares).
		Stringer("settlement_price", receipt.SettlementPrice).
		Stringer("trade_id", receipt.TradeID).
		Msg("sell settled")

	b.editContent(s, i, fmt.Sprintf("<@%d> sold %d quonks of $%s @ $%s per quonk.",
		memberID, shares, ticker, receipt.SettlementPrice.Display()))
}

func (b *Bot) handleLeaderboard(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	leaders, err := b.queries.Leaderboard(ctx, 0)
	if err != nil {
		b.respondFailure(s, i, "leaderboard", err)
		return
	}
	b.respondEmbed(s, i, leaderboardEmbed(leaders), false)
}

// lookupQuote wraps the price source with metrics.
func (b *Bot) lookupQuote(ctx context.Context, ticker string) (money.Amount, error) {
	b.metrics.QuoteRequests.Inc()
	start := time.Now()
	price, err := b.quotes.Quote(ctx, ticker)
	b.metrics.QuoteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		b.metrics.QuoteFailures.Inc()
	}
	return price, err
}

// interactionMemberID extracts the invoking user's snowflake id, whether
// the command came from a guild channel or a DM.
func interactionMemberID(i *discordgo.InteractionCreate) (int64, error) {
	var raw string
	switch {
	case i.Member != nil && i.Member.User != nil:
		raw = i.Member.User.ID
	case i.User != nil:
		raw = i.User.ID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse member id %q: %w", raw, err)
	}
	return id, nil
}

func optionTicker(i *discordgo.InteractionCreate) string {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "ticker" {
			return strings.ToUpper(strings.TrimSpace(opt.StringValue()))
		}
	}
	return ""
}

func optionShares(i *discordgo.InteractionCreate) int64 {
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "shares" {
			return opt.IntValue()
		}
	}
	return 0
}

// userMessage maps every failure kind to the text shown to the requester.
func userMessage(err error) string {
	if quote.IsUnavailable(err) {
		return err.Error()
	}
	switch ledger.KindOf(err) {
	case ledger.KindAlreadyRegistered:
		return "You are already registered."
	case ledger.KindUnknownMember:
		return "You are not registered yet. Use /register to get started."
	case ledger.KindUnknownPosition, ledger.KindInvalidShares,
		ledger.KindInsufficientFunds:
		return upperFirst(err.Error())
	}
	return "Something went wrong. Please try again."
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
