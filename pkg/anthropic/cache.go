package anthropic

// BuildCachedSystemBlocks wraps a system instruction in a single block with a
// cache breakpoint. Every row of a run shares the same instruction, so after
// the first request the prefix is served from the prompt cache.
func BuildCachedSystemBlocks(text string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: "5m",
			},
		},
	}
}
