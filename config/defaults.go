package config

import "github.com/spf13/viper"

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.debug", false)
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.query_timeout", "5m")

	v.SetDefault("server.address", ":8080")

	v.SetDefault("llm.base_url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("llm.model", "gpt-4o")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout", "120s")

	v.SetDefault("index.path", "data/term_index.json")
	v.SetDefault("index.min_doc_frequency", 2)
	v.SetDefault("index.acronyms", map[string]string{
		"HSBC": "hongkong and shanghai banking corporation",
		"IMF":  "international monetary fund",
		"JDC":  "joint distribution committee",
		"ICA":  "jewish colonization association",
	})
	v.SetDefault("index.keywords", []string{
		"banking", "finance", "merchant", "loan", "bond", "exchange",
		"philanthropy", "emigration", "community",
	})
	v.SetDefault("index.synonym_groups", map[string][]string{
		"jewish":     {"sephardi", "ashkenazi", "judaic", "hebrew"},
		"rothschild": {"rothschilds"},
		"banker":     {"financier", "merchant banker"},
	})

	v.SetDefault("retrieval.generic_terms", []string{
		"bank", "money", "market", "history", "century", "world", "people",
	})
	v.SetDefault("retrieval.fulltext_fallback", false)
	v.SetDefault("retrieval.fallback_top_k", 20)
	v.SetDefault("retrieval.event_keywords", []string{
		"crisis", "crash", "panic", "war", "revolution", "expulsion", "founding",
	})
	v.SetDefault("retrieval.market_keywords", []string{
		"market", "stock", "bond", "capital", "trade", "finance", "investment",
	})
	v.SetDefault("retrieval.ideology_keywords", []string{
		"ideology", "religion", "zionism", "socialism", "assimilation", "identity",
	})

	v.SetDefault("partition.max_words_per_partition", 6000)
	v.SetDefault("partition.prompt_overhead_words", 500)
	v.SetDefault("partition.eras", []map[string]interface{}{
		{"label": "early modern (to 1789)", "from": 1500, "to": 1789},
		{"label": "napoleonic era (1790-1815)", "from": 1790, "to": 1815},
		{"label": "nineteenth century (1816-1870)", "from": 1816, "to": 1870},
		{"label": "gilded age (1871-1913)", "from": 1871, "to": 1913},
		{"label": "world wars (1914-1945)", "from": 1914, "to": 1945},
		{"label": "postwar (1946-1970)", "from": 1946, "to": 1970},
		{"label": "late twentieth century (1971-1999)", "from": 1971, "to": 1999},
		{"label": "twenty-first century (2000-)", "from": 2000, "to": 2099},
	})
	v.SetDefault("partition.regions", []map[string]interface{}{
		{"label": "western europe", "pattern": `(?i)\b(london|paris|frankfurt|vienna|amsterdam|england|britain|france|germany|austria)\b`},
		{"label": "eastern europe", "pattern": `(?i)\b(russia|poland|warsaw|odessa|pale of settlement|lithuania|galicia)\b`},
		{"label": "middle east", "pattern": `(?i)\b(baghdad|ottoman|istanbul|constantinople|palestine|jerusalem|aleppo)\b`},
		{"label": "americas", "pattern": `(?i)\b(new york|wall street|america|united states|brazil|argentina)\b`},
		{"label": "asia", "pattern": `(?i)\b(bombay|calcutta|shanghai|hong kong|india|china|singapore)\b`},
	})

	v.SetDefault("generate.max_concurrent", 10)
	v.SetDefault("generate.max_retries", 3)
	v.SetDefault("generate.retry_base_delay", "2s")
	v.SetDefault("generate.tokens_per_minute", 90000)
	v.SetDefault("generate.token_word_multiplier", 1.4)
	v.SetDefault("generate.expected_output_tokens", 1500)
	v.SetDefault("generate.truncation_ratio", 0.02)

	v.SetDefault("review.max_iterations", 2)
	v.SetDefault("review.max_paragraph_sentences", 8)
	v.SetDefault("review.chronology_jump_years", 30)
	v.SetDefault("review.coverage_gap_years", 15)
	v.SetDefault("review.must_mention", map[string][]string{
		"1929 crash":    {"1929", "great depression", "crash of 1929"},
		"world war two": {"second world war", "world war ii", "1939", "holocaust"},
	})

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", "6379")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("storage.redis.timeout", "5s")

	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.metrics_port", 9090)
}
