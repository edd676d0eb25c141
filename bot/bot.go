package bot

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"starboard-bot/config"
	"starboard-bot/database"
	"starboard-bot/grpc"
	"starboard-bot/starboard"
	"starboard-bot/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/viper"
)

// Bot encapsulates the bot's state.
type Bot struct {
	Session *discordgo.Session
	DB      *database.DB
	Service *starboard.Service
	Metrics *starboard.Counters

	health *grpc.HealthServer
}

// NewBot creates and initializes a new Bot instance.
func NewBot() (*Bot, error) {
	config.LoadConfig()
	token := viper.GetString("BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("no bot token provided")
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMessageReactions

	db, err := database.New(viper.GetString("starboard.dbPath"))
	if err != nil {
		return nil, fmt.Errorf("error opening starboard database: %w", err)
	}

	return &Bot{
		Session: dg,
		DB:      db,
		Metrics: starboard.NewCounters(),
	}, nil
}

// Start wires the starboard pipeline, opens the session and starts the
// background jobs.
func (b *Bot) Start(registerHandlers func(*Bot)) error {
	// The bot's own identity is needed for loopback detection before the
	// gateway is opened, so resolve it over the REST API.
	me, err := b.Session.User("@me")
	if err != nil {
		return fmt.Errorf("error resolving bot identity: %w", err)
	}

	chat := starboard.NewDiscordClient(b.Session)
	publisher := starboard.NewWebhookPublisher(b.Session, me.ID)
	b.Service = starboard.NewService(
		me.ID,
		viper.GetString("starboard.emoji"),
		b.DB, b.DB, b.DB,
		chat,
		publisher,
		b.Metrics,
	)

	registerHandlers(b)

	if err := b.Session.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	utils.InitLogger(b.Session)
	startScheduler(b)

	// Serve the gRPC health endpoint for deployment probes when configured.
	if addr := viper.GetString("grpc.healthAddr"); addr != "" {
		b.health = grpc.NewHealthServer(addr)
		if err := b.health.Start(); err != nil {
			utils.Error("bot", "health server", err.Error())
		}
	}

	fmt.Println("Bot is now running. Press CTRL-C to exit.")
	return nil
}

// Stop gracefully closes the bot's session and resources.
func (b *Bot) Stop() {
	stopScheduler()
	if b.health != nil {
		b.health.SetServing(false)
		b.health.Stop()
	}
	if b.Session != nil {
		b.Session.Close()
	}
	if b.DB != nil {
		b.DB.Close()
	}
	fmt.Println("Bot stopped gracefully.")
}

// Run is the main entry point for the bot application.
func Run(registerHandlers func(*Bot)) {
	bot, err := NewBot()
	if err != nil {
		log.Fatalf("Error initializing bot: %v", err)
	}

	if err := bot.Start(registerHandlers); err != nil {
		log.Fatalf("Error starting bot: %v", err)
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	bot.Stop()
}
