// Package ident generates the opaque identifiers used for tasks, plans,
// steps and tools.
package ident

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// New returns an id of the form "prefix-8f3a2c41d0b59e77".
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; keep the id
		// usable anyway.
		return prefix + "-0000000000000000"
	}
	return prefix + "-" + hex.EncodeToString(buf)
}

var adjectives = []string{
	"amber", "azure", "bold", "brave", "bright",
	"calm", "clear", "cold", "cool", "coral",
	"crisp", "dark", "dawn", "deep", "dry",
	"dusk", "early", "fair", "fast", "firm",
	"fresh", "gold", "gray", "green", "high",
	"icy", "iron", "keen", "kind", "lean",
	"light", "lime", "mild", "mint", "mist",
	"neat", "north", "old", "opal", "open",
	"pale", "pine", "plain", "prime", "pure",
	"quiet", "rare", "raw", "red", "rich",
	"ripe", "rose", "ruby", "rust", "safe",
	"sage", "silk", "slim", "slow", "soft",
	"south", "steel", "still", "stone", "swift",
	"tall", "teal", "thin", "true", "warm",
	"west", "white", "wide", "wild", "wise",
}

var nouns = []string{
	"arch", "ash", "bay", "beam", "birch",
	"bloom", "bolt", "brook", "cape", "cave",
	"cedar", "cliff", "cloud", "coast", "cove",
	"crane", "creek", "crest", "dale", "dart",
	"dawn", "delta", "dove", "drift", "dune",
	"elm", "ember", "fern", "field", "finch",
	"flame", "flint", "fog", "forge", "fox",
	"frost", "gale", "gate", "glen", "grove",
	"hawk", "heath", "hill", "hive", "ivy",
	"jade", "jay", "lake", "lark", "leaf",
	"ledge", "loft", "maple", "marsh", "mesa",
	"moss", "oak", "otter", "owl", "palm",
	"path", "peak", "pine", "pond", "quail",
	"rain", "raven", "reef", "ridge", "river",
	"shore", "sky", "slope", "snow", "spark",
	"star", "storm", "stream", "thorn", "tide",
	"trail", "vale", "vine", "wave", "willow",
}

// NewSessionID generates a human-friendly session id in the form
// "adjective-noun".
func NewSessionID() string {
	return fmt.Sprintf("%s-%s", pickRandom(adjectives), pickRandom(nouns))
}

func pickRandom(list []string) string {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(list))))
	if err != nil {
		return list[0]
	}
	return list[n.Int64()]
}
