// Package botreg is the single source of truth for bot detection and
// classification. Classification is two-level: a family ("Google",
// "OpenAI", ...) groups individual bots ("Googlebot", "GPTBot", ...).
// Only search engine and LLM/AI bots are included; SEO tools, social
// media previews and monitoring agents are explicitly excluded.
package botreg

import "strings"

// FamilyType tags a bot family as a search engine or an LLM/AI crawler.
type FamilyType string

// Supported family types.
const (
	TypeSearchEngine FamilyType = "search_engine"
	TypeLLM          FamilyType = "llm"
)

// Bot is one named crawler with its lowercase user-agent signatures.
// Signatures of more specific bots must appear before generic ones within a
// family (Googlebot-Image before Googlebot), matching is first-match-wins.
type Bot struct {
	Name       string
	Signatures []string
}

// Family groups related bots under one organization.
type Family struct {
	Name  string
	Type  FamilyType
	Color string
	Bots  []Bot
}

// families is ordered by importance; order is part of the matching contract.
var families = []Family{
	// Search engines.
	{Name: "Google", Type: TypeSearchEngine, Color: "#4285F4", Bots: []Bot{
		{Name: "Googlebot-Image", Signatures: []string{"googlebot-image/"}},
		{Name: "Googlebot-Video", Signatures: []string{"googlebot-video/"}},
		{Name: "Googlebot-News", Signatures: []string{"googlebot-news"}},
		{Name: "Google-InspectionTool", Signatures: []string{"google-inspectiontool"}},
		{Name: "Storebot-Google", Signatures: []string{"storebot-google"}},
		{Name: "AdsBot-Google", Signatures: []string{"adsbot-google"}},
		{Name: "Googlebot", Signatures: []string{"googlebot/", "compatible; googlebot"}},
	}},
	{Name: "Microsoft", Type: TypeSearchEngine, Color: "#00A4EF", Bots: []Bot{
		{Name: "BingPreview", Signatures: []string{"bingpreview/"}},
		{Name: "AdIdxBot", Signatures: []string{"adidxbot"}},
		{Name: "MSNBot", Signatures: []string{"msnbot"}},
		{Name: "Bingbot", Signatures: []string{"bingbot/"}},
	}},
	{Name: "Yandex", Type: TypeSearchEngine, Color: "#FC3F1D", Bots: []Bot{
		{Name: "YandexImages", Signatures: []string{"yandeximages", "yandeximageresizer"}},
		{Name: "YandexBot", Signatures: []string{"yandexbot/"}},
	}},
	{Name: "Baidu", Type: TypeSearchEngine, Color: "#2932E1", Bots: []Bot{
		{Name: "Baiduspider", Signatures: []string{"baiduspider"}},
	}},
	{Name: "DuckDuckGo", Type: TypeSearchEngine, Color: "#DE5833", Bots: []Bot{
		{Name: "DuckAssistBot", Signatures: []string{"duckassistbot"}},
		{Name: "DuckDuckBot", Signatures: []string{"duckduckbot"}},
		{Name: "DuckDuckGo", Signatures: []string{"duckduckgo/"}},
	}},
	{Name: "Apple", Type: TypeSearchEngine, Color: "#555555", Bots: []Bot{
		{Name: "Applebot", Signatures: []string{"applebot"}},
	}},
	{Name: "Yahoo", Type: TypeSearchEngine, Color: "#720E9E", Bots: []Bot{
		{Name: "Slurp", Signatures: []string{"slurp"}},
	}},
	// LLM / AI.
	{Name: "OpenAI", Type: TypeLLM, Color: "#10A37F", Bots: []Bot{
		{Name: "OAI-SearchBot", Signatures: []string{"oai-searchbot"}},
		{Name: "ChatGPT-User", Signatures: []string{"chatgpt-user"}},
		{Name: "GPTBot", Signatures: []string{"gptbot"}},
	}},
	{Name: "Anthropic", Type: TypeLLM, Color: "#D4A574", Bots: []Bot{
		{Name: "Claude-SearchBot", Signatures: []string{"claude-searchbot"}},
		{Name: "Claude-User", Signatures: []string{"claude-user"}},
		{Name: "Claude-Web", Signatures: []string{"claude-web"}},
		{Name: "ClaudeBot", Signatures: []string{"claudebot"}},
	}},
	{Name: "Google AI", Type: TypeLLM, Color: "#8E44AD", Bots: []Bot{
		{Name: "Gemini-Deep-Research", Signatures: []string{"gemini-deep-research"}},
		{Name: "GoogleAgent-Mariner", Signatures: []string{"googleagent-mariner"}},
		{Name: "Google-CloudVertexBot", Signatures: []string{"google-cloudvertexbot"}},
		{Name: "GoogleOther-Image", Signatures: []string{"googleother-image"}},
		{Name: "GoogleOther-Video", Signatures: []string{"googleother-video"}},
		{Name: "GoogleOther", Signatures: []string{"googleother"}},
	}},
	{Name: "Meta AI", Type: TypeLLM, Color: "#0668E1", Bots: []Bot{
		{Name: "Meta-ExternalFetcher", Signatures: []string{"meta-externalfetcher"}},
		{Name: "Meta-WebIndexer", Signatures: []string{"meta-webindexer"}},
		{Name: "Meta-ExternalAgent", Signatures: []string{"meta-externalagent"}},
	}},
	{Name: "Perplexity", Type: TypeLLM, Color: "#7C3AED", Bots: []Bot{
		{Name: "Perplexity-User", Signatures: []string{"perplexity-user"}},
		{Name: "PerplexityBot", Signatures: []string{"perplexitybot"}},
	}},
	{Name: "Bytedance", Type: TypeLLM, Color: "#010101", Bots: []Bot{
		{Name: "TikTokSpider", Signatures: []string{"tiktokspider"}},
		{Name: "Bytespider", Signatures: []string{"bytespider"}},
	}},
	{Name: "Amazon", Type: TypeLLM, Color: "#FF9900", Bots: []Bot{
		{Name: "AmazonBuyForMe", Signatures: []string{"amazonbuyforme"}},
		{Name: "Amazonbot", Signatures: []string{"amazonbot"}},
	}},
	{Name: "Cohere", Type: TypeLLM, Color: "#39594D", Bots: []Bot{
		{Name: "Cohere-Training", Signatures: []string{"cohere-training-data-crawler"}},
		{Name: "CohereBot", Signatures: []string{"cohere-ai"}},
	}},
	{Name: "Mistral", Type: TypeLLM, Color: "#F54E42", Bots: []Bot{
		{Name: "MistralAI-User", Signatures: []string{"mistralai-user"}},
	}},
	{Name: "DeepSeek", Type: TypeLLM, Color: "#4D6BFE", Bots: []Bot{
		{Name: "DeepSeekBot", Signatures: []string{"deepseekbot"}},
	}},
	{Name: "xAI", Type: TypeLLM, Color: "#1DA1F2", Bots: []Bot{
		{Name: "Grok-DeepSearch", Signatures: []string{"grok-deepsearch"}},
		{Name: "GrokBot", Signatures: []string{"grokbot"}},
		{Name: "xAI-Grok", Signatures: []string{"xai-grok"}},
	}},
	{Name: "CommonCrawl", Type: TypeLLM, Color: "#E74C3C", Bots: []Bot{
		{Name: "CCBot", Signatures: []string{"ccbot"}},
	}},
	{Name: "You.com", Type: TypeLLM, Color: "#6366F1", Bots: []Bot{
		{Name: "YouBot", Signatures: []string{"youbot"}},
	}},
	{Name: "Brave", Type: TypeLLM, Color: "#FB542B", Bots: []Bot{
		{Name: "BraveBot", Signatures: []string{"bravebot"}},
	}},
	{Name: "Diffbot", Type: TypeLLM, Color: "#1C7C54", Bots: []Bot{
		{Name: "Diffbot", Signatures: []string{"diffbot"}},
	}},
}

// excluded lists agents that must never be imported, checked before the
// family lookup as a fast reject.
var excluded = []string{
	// SEO tools
	"ahrefsbot", "semrushbot", "semrushbot-si", "semrushbot-ocob",
	"dotbot", "mj12bot", "screaming frog", "seokicks", "sistrix",
	"rogerbot", "blexbot", "megaindex", "opensiteexplorer",
	"dataforseobot", "serpstatbot", "zoominfobot",
	// Social media
	"facebookexternalhit", "facebot", "twitterbot", "linkedinbot",
	"whatsapp", "slackbot", "telegrambot", "discordbot",
	"pinterest", "snapchat",
	// Monitoring / internal
	"wordpress", "wp-cron",
	"python-requests", "python-httpx", "python-urllib",
	"go-http-client", "java/", "okhttp",
	"curl/", "wget/", "postman", "insomnia", "httpie",
	"uptimerobot", "statuscake", "pingdom", "site24x7",
	"newrelicpinger", "datadog",
	// Other irrelevant bots
	"neevabot", "yahoo! slurp", "sogou",
	"archive.org_bot", "ia_archiver",
}

type signature struct {
	pattern string
	bot     string
	family  string
}

// lookup is the flat, ordered signature table built once at init.
var lookup []signature

func init() {
	for _, fam := range families {
		for _, bot := range fam.Bots {
			for _, pattern := range bot.Signatures {
				lookup = append(lookup, signature{pattern: pattern, bot: bot.Name, family: fam.Name})
			}
		}
	}
}

// Classify matches a user-agent string against the registry. It returns the
// bot name, family name and true for a relevant bot; excluded or unknown
// agents return ok = false. Classify never fails and is deterministic.
func Classify(userAgent string) (bot, family string, ok bool) {
	if userAgent == "" {
		return "", "", false
	}
	ua := strings.ToLower(userAgent)
	for _, excl := range excluded {
		if strings.Contains(ua, excl) {
			return "", "", false
		}
	}
	for _, sig := range lookup {
		if strings.Contains(ua, sig.pattern) {
			return sig.bot, sig.family, true
		}
	}
	return "", "", false
}

// Families returns the full catalogue for filter UIs. The returned slice
// shares no state with the registry and is safe to mutate.
func Families() []Family {
	out := make([]Family, len(families))
	for i, fam := range families {
		bots := make([]Bot, len(fam.Bots))
		for j, bot := range fam.Bots {
			sigs := make([]string, len(bot.Signatures))
			copy(sigs, bot.Signatures)
			bot.Signatures = sigs
			bots[j] = bot
		}
		fam.Bots = bots
		out[i] = fam
	}
	return out
}

// FamilyFor reports the family a bot name belongs to.
func FamilyFor(botName string) (string, bool) {
	for _, fam := range families {
		for _, bot := range fam.Bots {
			if bot.Name == botName {
				return fam.Name, true
			}
		}
	}
	return "", false
}
