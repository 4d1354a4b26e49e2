package index

// Level identifies one of the index levels. Each level stores a different
// record type and is laid out under its own directory on every mount.
type Level string

const (
	// LevelDomain aggregates scores per domain hash.
	LevelDomain Level = "domain"
	// LevelURL aggregates scores per URL hash.
	LevelURL Level = "url"
	// LevelWord stores per-URL occurrence counts whose scores are
	// normalized against document size in the optimize pass.
	LevelWord Level = "word"
	// LevelLink stores the domain link graph: postings under a target
	// domain list the source domains linking to it.
	LevelLink Level = "link"
	// LevelURLLink stores inbound links per target URL.
	LevelURLLink Level = "url_link"
)

// String returns the level's on-disk directory name.
func (l Level) String() string { return string(l) }

// AllLevels lists the levels the ingestion pipeline populates.
func AllLevels() []Level {
	return []Level{LevelDomain, LevelURL, LevelWord, LevelLink, LevelURLLink}
}
