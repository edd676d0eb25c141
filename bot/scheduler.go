package bot

import (
	"fmt"
	"log"
	"strings"

	"starboard-bot/utils"

	"github.com/robfig/cron/v3"
)

var c *cron.Cron

// startScheduler starts the cron jobs.
func startScheduler(b *Bot) {
	log.Println("Initializing scheduler...")
	c = cron.New()
	_, err := c.AddFunc("@hourly", func() {
		log.Println("Running hourly stats report...")
		reportStats(b)
	})
	if err != nil {
		log.Fatalf("Could not set up cron job: %v", err)
	}
	c.Start()
	log.Println("Cron job scheduled to run hourly.")
}

// stopScheduler stops the cron jobs.
func stopScheduler() {
	if c != nil {
		c.Stop()
		log.Println("Scheduler stopped.")
	}
}

// reportStats logs a snapshot of the pipeline counters and the top star
// tallies of every configured guild.
func reportStats(b *Bot) {
	snapshot := b.Metrics.Snapshot()
	log.Printf("Reaction stats: adds=%d removes=%d publishes=%d publishErrors=%d drops=%d",
		snapshot.Adds, snapshot.Removes, snapshot.Publishes, snapshot.PublishErrors, snapshot.Drops)

	guilds, err := b.DB.ConfiguredGuilds()
	if err != nil {
		log.Printf("Error loading configured guilds for stats report: %v", err)
		return
	}

	for _, guild := range guilds {
		tallies, err := b.DB.TopTallies(guild.GuildID, 5)
		if err != nil {
			log.Printf("Error loading top tallies for guild %s: %v", guild.GuildID, err)
			continue
		}
		if len(tallies) == 0 {
			continue
		}

		var lines []string
		for i, tally := range tallies {
			lines = append(lines, fmt.Sprintf("%d. <@%s>: %d", i+1, tally.UserID, tally.Amount))
		}
		utils.Info("starboard", "hourly stats",
			fmt.Sprintf("Guild %s top star givers:\n%s", guild.GuildID, strings.Join(lines, "\n")))
	}
}
