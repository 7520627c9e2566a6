package storage

var pgMigration = []string{
	`CREATE TYPE platform AS ENUM ('youtube', 'peertube', 'odysee')`,
	`CREATE TYPE video_type AS ENUM ('video', 'short', 'stream')`,
	`CREATE TYPE sponsorblock_status AS ENUM ('sponsor', 'selfpromo', 'exclusive_access')`,
	`CREATE TABLE video (
id uuid PRIMARY KEY,
video_id VARCHAR(255) NOT NULL UNIQUE,
platform platform NOT NULL,
type video_type NOT NULL,
title VARCHAR(255) NOT NULL,
description TEXT NOT NULL DEFAULT '',
duration INTEGER,
display_name VARCHAR(255) NOT NULL,
username VARCHAR(255) NOT NULL,
channel_id VARCHAR(255) NOT NULL,
date TIMESTAMPTZ NOT NULL,
is_currently_live BOOLEAN NOT NULL DEFAULT FALSE,
unread BOOLEAN NOT NULL DEFAULT FALSE,
sponsorblock_status sponsorblock_status,
url VARCHAR(255) NOT NULL
)`,
	`CREATE INDEX video_channel_id_idx ON video (channel_id)`,
	`CREATE INDEX video_platform_type_idx ON video (platform, type)`,
	`CREATE INDEX video_date_idx ON video (date)`,
}
