// Package bot is the Discord command-dispatch layer: it registers the
// slash commands, translates interactions into ledger calls, and renders
// results and failures back to the requester. All failure rendering
// happens here; the core neither logs nor swallows errors.
package bot

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"QuonkLedger/internal/core"
	"QuonkLedger/internal/ledger"
	"QuonkLedger/internal/observability"
	"QuonkLedger/internal/query"
	"QuonkLedger/internal/quote"
)

// embedColor is the QuonkBot green.
const embedColor = 0x3BA55D

// commandTimeout bounds the work behind one interaction, quote lookups
// included.
const commandTimeout = 25 * time.Second

// Bot wires the Discord session to the ledger components.
type Bot struct {
	session *discordgo.Session
	store   ledger.Ledger
	engine  *core.Engine
	queries *query.Service
	quotes  quote.Source
	metrics *observability.Metrics
	logger  zerolog.Logger

	guildID    string
	registered []*discordgo.ApplicationCommand
}

// Deps holds everything the bot dispatches to.
type Deps struct {
	Store   ledger.Ledger
	Engine  *core.Engine
	Queries *query.Service
	Quotes  quote.Source
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// New creates the bot around an authenticated-but-unopened session.
func New(token, guildID string, deps Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	// Slash commands arrive over the interactions gateway; no privileged
	// intents needed.
	session.Identify.Intents = discordgo.IntentsNone

	b := &Bot{
		session: session,
		store:   deps.Store,
		engine:  deps.Engine,
		queries: deps.Queries,
		quotes:  deps.Quotes,
		metrics: deps.Metrics,
		logger:  deps.Logger,
		guildID: guildID,
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	return b, nil
}

// Start opens the gateway connection and registers the slash commands.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	registered, err := b.session.ApplicationCommandBulkOverwrite(
		b.session.State.User.ID, b.guildID, commandDefinitions(),
	)
	if err != nil {
		b.session.Close()
		return fmt.Errorf("register commands: %w", err)
	}
	b.registered = registered

	b.logger.Info().Int("commands", len(registered)).Str("guild", b.guildID).
		Msg("slash commands registered")
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	return b.session.Close()
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.logger.Info().Str("user", r.User.Username).Msg("discord gateway ready")
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	name := i.ApplicationCommandData().Name
	start := time.Now()
	b.dispatch(name, s, i)
	b.metrics.CommandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (b *Bot) dispatch(name string, s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch name {
	case "help":
		b.handleHelp(s, i)
	case "register":
		b.handleRegister(s, i)
	case "quote":
		b.handleQuote(s, i)
	case "holdings":
		b.handleHoldings(s, i)
	case "buy":
		b.handleBuy(s, i)
	case "sell":
		b.handleSell(s, i)
	case "leaderboard":
		b.handleLeaderboard(s, i)
	default:
		b.logger.Warn().Str("command", name).Msg("unknown command interaction")
	}
}

func commandDefinitions() []*discordgo.ApplicationCommand {
	minOneShare := float64(1)

	tickerOption := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "ticker",
			Description: desc,
			Required:    true,
		}
	}
	sharesOption := func(desc string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "shares",
			Description: desc,
			Required:    true,
			MinValue:    &minOneShare,
		}
	}

	return []*discordgo.ApplicationCommand{
		{Name: "help", Description: "Learn more about QuonkBot!"},
		{Name: "register", Description: "Registers you and gives you $10,000."},
		{
			Name:        "quote",
			Description: "Responds with a ticker quote",
			Options:     []*discordgo.ApplicationCommandOption{tickerOption("Stock ticker")},
		},
		{Name: "holdings", Description: "Shows your current Quonk holdings and values"},
		{
			Name:        "buy",
			Description: "Buy Quonks",
			Options: []*discordgo.ApplicationCommandOption{
				tickerOption("The stock you want to buy"),
				sharesOption("Number of Quonks to buy"),
			},
		},
		{
			Name:        "sell",
			Description: "Sell Quonks",
			Options: []*discordgo.ApplicationCommandOption{
				tickerOption("The stock to sell"),
				sharesOption("Number of Quonks to sell"),
			},
		},
		{Name: "leaderboard", Description: "Top quonk traders"},
	}
}
