//go:build ignore

// Publishes a sample ETL job on the job stream for local testing:
//
//	go run scripts/test_publish.go -redis localhost:6379 -variable tas -ssp 126,585
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/UW-Climate-Risk-Lab/climate-risk-map-api/internal/domain"
)

func main() {
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for streams")
	variable := flag.String("variable", "tas", "climate variable")
	ssps := flag.String("ssp", "126,245,585", "comma separated SSPs")
	osmType := flag.String("osm-type", "power", "osm_type to aggregate")
	refresh := flag.Bool("refresh", false, "publish a view refresh job instead")
	flag.Parse()

	client := redis.NewClient(&redis.Options{
		Addr: *redisAddr,
	})
	defer client.Close()

	ctx := context.Background()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	var (
		stream string
		event  interface{}
	)
	if *refresh {
		stream = domain.StreamViewRefresh
		event = domain.ViewRefreshEvent{JobID: uuid.New(), RequestedAt: time.Now().UTC()}
	} else {
		stream = domain.StreamETLJobs
		event = domain.ETLJobEvent{
			JobID:       uuid.New(),
			Variable:    *variable,
			SSPs:        strings.Split(*ssps, ","),
			Category:    "infrastructure",
			OSMType:     *osmType,
			StateBBox:   "washington",
			RequestedAt: time.Now().UTC(),
		}
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Fatalf("Failed to marshal event: %v", err)
	}

	result, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		log.Fatalf("Failed to publish event: %v", err)
	}

	fmt.Printf("Published to %s: %s\n%s\n", stream, result, data)
}
