package integration_tests

import (
	"fmt"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
)

// Base is the log time of the oldest fixture record.
var Base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// ServiceRecords returns n service log records with ids log-001 upwards.
// Records are stored in pairs sharing a log time, so page boundaries fall
// inside groups of ties. Every fifth record is an ERROR mentioning a lost
// heartbeat.
func ServiceRecords(n int) []core.LogRecord {
	records := make([]core.LogRecord, n)
	for i := range records {
		level, msg := "INFO", fmt.Sprintf("processed request %d", i+1)
		if (i+1)%5 == 0 {
			level, msg = "ERROR", fmt.Sprintf("lost heartbeat from agent %d", i+1)
		}
		host := "c7401"
		if i%3 == 2 {
			host = "c7402"
		}
		records[i] = core.LogRecord{
			ID:        fmt.Sprintf("log-%03d", i+1),
			LogTime:   Base.Add(time.Duration(i/2) * time.Second),
			Host:      host,
			Component: "ambari_server",
			Level:     level,
			File:      "/var/log/ambari-server/ambari-server.log",
			Cluster:   "cl1",
			Message:   msg,
		}
	}
	return records
}

// InjectionPayloads are strings that would alter a query built by string
// concatenation.
var InjectionPayloads = []string{
	"'; DROP TABLE logs; --",
	"' UNION SELECT * FROM sqlite_master; --",
	"' OR 1=1 --",
	"'; DELETE FROM logs WHERE 1=1; --",
	"'; PRAGMA table_info(logs); --",
	"'; ATTACH DATABASE '/etc/passwd' AS pwn; --",
	"' UNION SELECT load_extension('evil.so'); --",
	`message:* OR "`,
	"NEAR(lost heartbeat, 2)",
}
