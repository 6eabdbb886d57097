package model

// tomlDoc mirrors the TOML-like model file grammar from spec.md §6: a
// general section, enum value tables, an ordered init array, a commands
// table and a status table. Decoded with github.com/pelletier/go-toml/v2.
type tomlDoc struct {
	General  tomlGeneral                `toml:"general"`
	Enums    map[string]tomlEnum        `toml:"enums"`
	Init     []tomlFrame                `toml:"init"`
	Commands map[string]tomlCommand     `toml:"commands"`
	Status   map[string]tomlStatusPoll  `toml:"status"`
}

type tomlGeneral struct {
	Type    string `toml:"type"`
	Version int    `toml:"version"`
}

type tomlEnum struct {
	// Values is a list of [member, integer] pairs, e.g.
	// values = [["A", 1], ["B", 2]].
	Values [][]any `toml:"values"`
}

// tomlFrame is a parameter-less frame: one init step.
type tomlFrame struct {
	Pattern     string `toml:"pattern"`
	ReplyLength *int   `toml:"reply_length"`
	ReplyEnd    *int   `toml:"reply_end"`
	Validate    string `toml:"validate"`
}

type tomlCommand struct {
	Pattern     string               `toml:"pattern"`
	ReplyLength *int                 `toml:"reply_length"`
	ReplyEnd    *int                 `toml:"reply_end"`
	Validate    string               `toml:"validate"`
	Params      map[string]tomlField `toml:"params"`
}

type tomlStatusPoll struct {
	Pattern     string               `toml:"pattern"`
	ReplyLength *int                 `toml:"reply_length"`
	ReplyEnd    *int                 `toml:"reply_end"`
	Validate    string               `toml:"validate"`
	Fields      map[string]tomlField `toml:"fields"`
}

type tomlField struct {
	Index    int    `toml:"index"`
	Length   *int   `toml:"length"`
	Format   string `toml:"format"`
	Add      any    `toml:"add"`
	Multiply any    `toml:"multiply"`
}
