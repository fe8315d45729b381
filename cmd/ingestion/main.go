package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"alertmonitor/internal/cache"
	"alertmonitor/internal/logger"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/gorilla/websocket"
)

// Binance combined-stream WebSocket endpoint
const binanceWS = "wss://stream.binance.com:9443/stream"

// Kafka broker details
const kafkaBroker = "localhost:9094"

// Price update structure (published to Kafka)
type PriceUpdate struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// Binance combined-stream envelope
type StreamMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// Trade event payload from Binance (@trade streams)
type TradeMessage struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	TradeTime int64  `json:"T"`
}

// Kafka producer
func newKafkaProducer() *kafka.Producer {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": kafkaBroker})
	if err != nil {
		log.Fatal("Failed to create Kafka producer:", err)
	}
	return p
}

// Publish message to Kafka
func publishToKafka(producer *kafka.Producer, priceData PriceUpdate) {
	value, err := json.Marshal(priceData)
	if err != nil {
		log.Println("Error marshaling JSON:", err)
		return
	}

	kafkaTopic := "price.updates"
	err = producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &kafkaTopic, Partition: kafka.PartitionAny},
		Value:          value,
	}, nil)

	if err != nil {
		log.Println("Error producing Kafka message:", err)
	}
}

// streamURL builds the combined-stream URL for the watched symbols
func streamURL(symbols []string) string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@trade"
	}
	return binanceWS + "?streams=" + strings.Join(streams, "/")
}

// Connect to Binance WebSocket
func connectWebSocket(url string) *websocket.Conn {
	var backoff = 1 * time.Second

	for {
		fmt.Println("Connecting to Binance WebSocket...")
		c, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			log.Printf("WebSocket connection failed: %v. Retrying in %v...\n", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		fmt.Println("Connected to Binance WebSocket!")
		return c
	}
}

func main() {
	symbolsFlag := flag.String("symbols", "BTCUSDT,ETHUSDT", "Comma-separated symbols to stream")
	flag.Parse()

	logger.InitLogger()
	cache.InitRedis()

	symbols := strings.Split(*symbolsFlag, ",")
	url := streamURL(symbols)

	producer := newKafkaProducer()
	defer producer.Close()

	for {
		c := connectWebSocket(url)

		// Read messages from WebSocket
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("WebSocket error:", err)
				break
			}

			var envelope StreamMessage
			if err := json.Unmarshal(message, &envelope); err != nil {
				log.Println("Error parsing message:", err)
				continue
			}

			var trade TradeMessage
			if err := json.Unmarshal(envelope.Data, &trade); err != nil {
				log.Println("Error parsing trade:", err)
				continue
			}

			if trade.EventType != "trade" {
				continue
			}

			price, err := strconv.ParseFloat(trade.Price, 64)
			if err != nil {
				log.Println("Error parsing price:", err)
				continue
			}

			priceUpdate := PriceUpdate{
				Exchange:  "binance",
				Symbol:    trade.Symbol,
				Price:     price,
				Timestamp: time.UnixMilli(trade.TradeTime).UTC().Format(time.RFC3339),
			}

			// Mirror the latest price for dashboard reads
			if err := cache.SetLatestPrice(context.Background(), trade.Symbol, price); err != nil {
				log.Println("Error caching latest price:", err)
			}

			// Publish trade data to Kafka
			publishToKafka(producer, priceUpdate)
		}

		c.Close()
	}
}
