package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host      string `env:"HOST,default=localhost"`
	Port      int    `env:"PORT,default=8080"`
	DebugPort int    `env:"DEBUG_PORT,default=8081"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`

	JWTSecret      string `env:"JWT_SECRET,required=true"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`

	FlushInterval     time.Duration `env:"FLUSH_INTERVAL,default=5s"`
	TelemetryInterval time.Duration `env:"TELEMETRY_INTERVAL,default=5s"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=200ms"`

	HistoryLimit   int `env:"HISTORY_LIMIT,default=20"`
	SendBufferSize int `env:"SEND_BUFFER_SIZE,default=256"`

	// Pipe-separated because stun/turn URLs contain colons.
	IceServers string `env:"ICE_SERVERS,default=stun:stun.l.google.com:19302|stun:stun1.l.google.com:19302"`

	CensoredWords string `env:"CENSORED_WORDS"`
	// Kept as a string: go-env decodes rune fields as integers, so "*"
	// would never parse. CharacterRune converts it.
	ModerationCharReplacement string `env:"MODERATION_CHARACTER_REPLACEMENT,default=*"`
}

// CharacterRune converts the configured replacement into a single rune.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"MODERATION_CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}

// IceServerList splits the configured ICE servers into URLs.
func (c Config) IceServerList() []string {
	var urls []string
	for _, url := range strings.Split(c.IceServers, "|") {
		if url = strings.TrimSpace(url); url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

// CensoredWordList splits the configured moderation words; empty means
// moderation is disabled.
func (c Config) CensoredWordList() []string {
	var words []string
	for _, word := range strings.Split(c.CensoredWords, ",") {
		if word = strings.TrimSpace(word); word != "" {
			words = append(words, word)
		}
	}
	return words
}
