package analyze

import (
	"sparkalyze/eventlog"
)

// Spark property keys that map to tunable levers.  Environment updates carry hundreds of
// properties; only these are worth keeping.  Unknown keys are dropped, not errors.
var tunableSparkProps = []string{
	// Shuffle
	"spark.sql.shuffle.partitions",
	"spark.reducer.maxSizeInFlight",
	"spark.shuffle.compress",
	"spark.shuffle.spill.compress",
	"spark.shuffle.file.buffer",
	"spark.shuffle.io.maxRetries",
	"spark.shuffle.io.retryWait",
	// Memory
	"spark.executor.memory",
	"spark.executor.memoryOverhead",
	"spark.driver.memory",
	"spark.driver.memoryOverhead",
	"spark.memory.fraction",
	"spark.memory.storageFraction",
	"spark.memory.offHeap.enabled",
	"spark.memory.offHeap.size",
	// Parallelism & partitions
	"spark.default.parallelism",
	"spark.sql.files.maxPartitionBytes",
	"spark.sql.files.openCostInBytes",
	"spark.sql.files.maxRecordsPerFile",
	// Adaptive query execution
	"spark.sql.adaptive.enabled",
	"spark.sql.adaptive.coalescePartitions.enabled",
	"spark.sql.adaptive.coalescePartitions.minPartitionSize",
	"spark.sql.adaptive.advisoryPartitionSizeInBytes",
	"spark.sql.adaptive.skewJoin.enabled",
	"spark.sql.adaptive.skewJoin.skewedPartitionFactor",
	"spark.sql.adaptive.skewJoin.skewedPartitionThresholdInBytes",
	"spark.sql.adaptive.autoBroadcastJoinThreshold",
	// Speculation
	"spark.speculation",
	"spark.speculation.multiplier",
	"spark.speculation.quantile",
	// Locality
	"spark.locality.wait",
	"spark.locality.wait.node",
	"spark.locality.wait.process",
	"spark.locality.wait.rack",
	// Compression & serialization
	"spark.serializer",
	"spark.io.compression.codec",
	"spark.sql.parquet.compression.codec",
	// Broadcast
	"spark.sql.autoBroadcastJoinThreshold",
	// Executor cores
	"spark.executor.cores",
	// Databricks-specific
	"spark.databricks.io.cache.enabled",
	"spark.databricks.io.cache.maxDiskUsage",
	"spark.databricks.io.cache.maxMetaDataCache",
	"spark.databricks.delta.optimizeWrite.enabled",
	"spark.databricks.delta.autoCompact.enabled",
}

// Later environment updates overwrite earlier ones, property by property.
func extractConfigSnapshot(events []eventlog.Event) map[string]string {
	allProps := make(map[string]string)
	for _, ev := range events {
		if ev.Tag() == eventlog.TagEnvironmentUpdate {
			for k, v := range ev.StrMap("Spark Properties") {
				allProps[k] = v
			}
		}
	}
	tunable := make(map[string]string)
	for _, key := range tunableSparkProps {
		if v, found := allProps[key]; found {
			tunable[key] = v
		}
	}
	return tunable
}
