package storage

// Schema statements per SQL dialect. They are applied in order on open and are idempotent.
var schemas = map[string][]string{
	"sqlite3": {
		`-- Frequency table: one row per observed (prefix, continuation) pair
CREATE TABLE IF NOT EXISTS frequencies (
    prefix TEXT NOT NULL,
    continuation TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (prefix, continuation)
)`,
		// Exact prefix lookups read rows already in ranking order.
		`CREATE INDEX IF NOT EXISTS idx_frequencies_rank ON frequencies(prefix, count DESC, continuation)`,
		`CREATE TABLE IF NOT EXISTS build_metadata (
    name TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`,
	},
	"mysql": {
		`CREATE TABLE IF NOT EXISTS frequencies (
    prefix VARCHAR(255) NOT NULL,
    continuation VARCHAR(255) NOT NULL,
    count BIGINT UNSIGNED NOT NULL DEFAULT 0,
    PRIMARY KEY (prefix, continuation),
    INDEX idx_frequencies_rank (prefix, count DESC, continuation)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
		`CREATE TABLE IF NOT EXISTS build_metadata (
    name VARCHAR(64) PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
	},
}

// mysqlMaxKeyLen is the VARCHAR width of the key columns in the mysql schema.
const mysqlMaxKeyLen = 255

var upsertSQL = map[string]string{
	"sqlite3": `INSERT INTO frequencies (prefix, continuation, count) VALUES (?, ?, ?)
ON CONFLICT(prefix, continuation) DO UPDATE SET count = count + excluded.count`,
	"mysql": `INSERT INTO frequencies (prefix, continuation, count) VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE count = count + VALUES(count)`,
}

const (
	topKSQL = `SELECT continuation, count FROM frequencies
WHERE prefix = ? ORDER BY count DESC, continuation ASC LIMIT ?`

	eachSQL = `SELECT prefix, continuation, count FROM frequencies ORDER BY prefix, continuation`

	pruneMinCountSQL = `DELETE FROM frequencies WHERE count < ?`

	pruneKeepTopSQL = `DELETE FROM frequencies WHERE (prefix, continuation) IN (
    SELECT prefix, continuation FROM (
        SELECT prefix, continuation,
            ROW_NUMBER() OVER (PARTITION BY prefix ORDER BY count DESC, continuation ASC) AS rn
        FROM frequencies
    ) AS ranked WHERE rn > ?
)`

	duplicatesSQL = `SELECT prefix, continuation, COUNT(*) FROM frequencies
GROUP BY prefix, continuation HAVING COUNT(*) > 1 LIMIT 1`
)
