package daemon

import (
	"context"
	"encoding/json"
	"log"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Job-run completion records published by the pipeline.  Analyses for these runs are computed
// ahead of time so the first browser request is served from the cache.
const runsTopic = "sparkalyze.runs"

type runRecord struct {
	ClusterID string `json:"clusterId"`
	JobRunID  int64  `json:"jobRunId"`
	FlowName  string `json:"flowName"`
}

// This runs on a goroutine for the life of the daemon.

func runKafka(dc *DaemonCommand, kafkaBroker string) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(kafkaBroker),
		kgo.ConsumerGroup("sparkalyze-prewarm"),
		kgo.ConsumeTopics(runsTopic),
	)
	if err != nil {
		// This should be surfaced somehow, but probably we should just back off and retry later,
		// the broker could be down - depends on the error!
		log.Printf("%s: Failed to create client: %v", runsTopic, err)
		return
	}
	defer cl.Close()
	if dc.Verbose {
		log.Printf("%s: Connected!", runsTopic)
	}

	ctx := context.Background()
	for {
		if dc.Verbose {
			log.Printf("%s: Fetching data", runsTopic)
		}
		fetches := cl.PollFetches(ctx)
		if errs := fetches.Errors(); len(errs) > 0 {
			// All errors are retried internally when fetching, but non-retriable errors are
			// returned from polls so that users can notice and take action.
			log.Printf("%s: SOFT ERROR: Failed to fetch data! %v", runsTopic, errs)
		}

		iter := fetches.RecordIter()
		for !iter.Done() {
			record := iter.Next()
			if err := dc.prewarm(record.Value); err != nil {
				log.Printf("  %s: SOFT ERROR: Pre-warm failed: %v", runsTopic, err)
			}
		}
		if err := cl.CommitUncommittedOffsets(ctx); err != nil {
			log.Printf("  %s: SOFT ERROR: Commit records failed: %v", runsTopic, err)
		}
	}
}

func (dc *DaemonCommand) prewarm(data []byte) error {
	rec := new(runRecord)
	if err := json.Unmarshal(data, rec); err != nil {
		return err
	}
	if rec.ClusterID == "" || rec.JobRunID == 0 || rec.FlowName == "" {
		if dc.Verbose {
			log.Printf("%s: Dropping an incomplete run record on the floor", runsTopic)
		}
		return nil
	}
	cfg := dc.configSnapshot()
	if cfg.DatabricksHost == "" || cfg.DatabricksToken == "" {
		if dc.Verbose {
			log.Printf("%s: Databricks not configured, skipping pre-warm", runsTopic)
		}
		return nil
	}
	_, cached, err := dc.ensureAnalysis(&cfg, rec.FlowName, rec.JobRunID, rec.ClusterID)
	if err != nil {
		return err
	}
	if dc.Verbose && !cached {
		log.Printf("%s: Pre-warmed analysis for %s/%d", runsTopic, rec.FlowName, rec.JobRunID)
	}
	return nil
}
