package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"link-resolver/common"
)

func main() {
	brokers := common.SplitList(common.GetEnv("KAFKA_BROKER", "localhost:9092"))
	topics := []string{
		common.GetEnv("LINKRESOLVER_REQUESTS_TOPIC", "linkresolver.requests"),
		common.GetEnv("LINKRESOLVER_MESSAGES_TOPIC", "linkresolver.messages"),
	}

	failed := false
	for _, broker := range brokers {
		if err := checkBroker(broker, topics); err != nil {
			fmt.Fprintln(os.Stderr, err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func checkBroker(broker string, topics []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to connect to Kafka at %s: %w", broker, err)
	}
	defer conn.Close()

	partitions, err := conn.ReadPartitions()
	if err != nil {
		return fmt.Errorf("failed to read metadata from %s: %w", broker, err)
	}
	if missing := missingTopics(partitions, topics); len(missing) > 0 {
		return fmt.Errorf("missing topics at %s: %v", broker, missing)
	}
	fmt.Printf("connected to Kafka at %s (%d partitions, topics %v present)\n", broker, len(partitions), topics)
	return nil
}

// missingTopics returns the entries of want with no partition in the metadata.
func missingTopics(partitions []kafka.Partition, want []string) []string {
	present := make(map[string]bool, len(partitions))
	for _, p := range partitions {
		present[p.Topic] = true
	}
	var missing []string
	for _, topic := range want {
		if !present[topic] {
			missing = append(missing, topic)
		}
	}
	return missing
}
