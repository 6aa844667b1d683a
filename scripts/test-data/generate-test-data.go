package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultAddr    = "localhost:6379"
	defaultChannel = "statsfeed"
)

var (
	homeTeams = []string{"Arsenal", "Lyon", "Ajax", "Porto", "Celtic", "Bologna"}
	awayTeams = []string{"Sevilla", "Leipzig", "Brugge", "Genk", "Braga", "Torino"}
	players   = []string{"Silva", "Martins", "Okafor", "Ito", "Larsen", "Petrov", "Diallo", "Novak"}
)

type frame struct {
	Type    string  `json:"type"`
	MatchID string  `json:"match_id"`
	Code    int     `json:"code"`
	Minute  *int    `json:"minute,omitempty"`
	Home    *string `json:"home,omitempty"`
	Away    *string `json:"away,omitempty"`
	Team    string  `json:"team,omitempty"`
	Player  *string `json:"player,omitempty"`
}

func main() {
	addr := defaultAddr
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}
	channel := defaultChannel
	if len(os.Args) > 2 {
		channel = os.Args[2]
	}

	log.Printf("Connecting to Redis at %s...", addr)
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to ping Redis: %v", err)
	}

	log.Printf("Publishing simulated match frames to channel %q (Ctrl-C to stop)", channel)
	rand.Seed(time.Now().UnixNano())

	matchNum := 0
	for {
		matchNum++
		matchID := fmt.Sprintf("sim-%04d", matchNum)
		home := homeTeams[rand.Intn(len(homeTeams))]
		away := awayTeams[rand.Intn(len(awayTeams))]
		log.Printf("Simulating match %s: %s vs %s", matchID, home, away)

		publish(ctx, client, channel, frame{
			Type: "incident", MatchID: matchID, Code: 201,
			Minute: intPtr(0), Home: &home, Away: &away,
		})

		// A compressed 90 minutes with a handful of incidents.
		for _, minute := range sortedMinutes(rand.Intn(6) + 2) {
			f := frame{
				Type:    "incident",
				MatchID: matchID,
				Minute:  intPtr(minute),
				Team:    pick("home", "away"),
				Player:  strPtr(players[rand.Intn(len(players))]),
			}
			switch rand.Intn(10) {
			case 0:
				f.Code = 451 // red card
			case 1, 2:
				f.Code = 401 // yellow card
			default:
				f.Code = 101 // goal
			}
			publish(ctx, client, channel, f)
			time.Sleep(time.Duration(rand.Intn(2000)+500) * time.Millisecond)
		}

		publish(ctx, client, channel, frame{
			Type: "incident", MatchID: matchID, Code: 202, Minute: intPtr(90),
		})
		time.Sleep(2 * time.Second)
	}
}

func publish(ctx context.Context, client *redis.Client, channel string, f frame) {
	payload, err := json.Marshal(f)
	if err != nil {
		log.Printf("Warning: failed to marshal frame: %v", err)
		return
	}
	if err := client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("Warning: failed to publish frame: %v", err)
	}
}

func sortedMinutes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = rand.Intn(91)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func pick(options ...string) string { return options[rand.Intn(len(options))] }
func intPtr(n int) *int             { return &n }
func strPtr(s string) *string       { return &s }
