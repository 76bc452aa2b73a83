package anthropic

// BuildCachedSystemBlocks constructs system content blocks with a cache
// breakpoint. The system preamble repeats verbatim across every batch of a
// mining run, so a 5-minute TTL covers consecutive calls within a level.
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
