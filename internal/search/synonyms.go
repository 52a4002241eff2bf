package search

// CodeSynonyms maps common code abbreviations and vocabulary to their
// expansions. Queries use natural language ("authentication") while
// code uses terse identifiers ("auth"); expansion bridges the gap for
// keyword search.
var CodeSynonyms = map[string][]string{
	// Functions and declarations
	"function": {"func", "method", "fn", "def"},
	"method":   {"func", "fn", "function"},
	"func":     {"function", "method", "fn"},
	"fn":       {"func", "function", "method"},
	"def":      {"func", "function", "method"},
	"lambda":   {"anonymous", "closure", "arrow"},

	// Types
	"class":     {"type", "struct", "interface"},
	"type":      {"class", "struct", "interface"},
	"struct":    {"class", "type", "structure"},
	"interface": {"protocol", "trait", "contract"},
	"object":    {"instance", "obj", "struct"},
	"enum":      {"enumeration", "constant", "variant"},

	// Errors
	"error":     {"err", "exception", "failure"},
	"err":       {"error", "exception"},
	"exception": {"error", "err", "panic"},
	"handle":    {"handler", "catch", "process"},
	"handler":   {"handle", "callback"},
	"retry":     {"attempt", "backoff"},
	"panic":     {"fatal", "crash", "abort"},
	"recover":   {"catch", "handle", "rescue"},
	"bug":       {"error", "defect", "issue"},

	// Auth
	"auth":           {"authentication", "authorize", "login"},
	"authentication": {"auth", "login", "credential"},
	"authorization":  {"auth", "permission", "access"},
	"login":          {"auth", "signin", "authenticate"},
	"logout":         {"signout", "session"},
	"token":          {"jwt", "bearer", "credential"},
	"password":       {"passwd", "credential", "secret"},
	"session":        {"cookie", "token", "state"},
	"user":           {"account", "usr", "member"},

	// Database
	"db":          {"database", "query", "sql"},
	"database":    {"db", "store", "storage", "sql"},
	"query":       {"sql", "select", "search"},
	"sql":         {"database", "query", "db"},
	"transaction": {"tx", "txn", "commit"},
	"tx":          {"transaction", "commit"},
	"migration":   {"schema", "migrate"},
	"record":      {"row", "entry", "document"},
	"cache":       {"lru", "memoize", "store"},

	// HTTP / API
	"api":      {"endpoint", "route", "request", "response"},
	"request":  {"req", "http"},
	"req":      {"request", "http"},
	"response": {"resp", "reply"},
	"resp":     {"response", "reply"},
	"http":     {"request", "response", "web"},
	"endpoint": {"handler", "route", "api"},
	"route":    {"endpoint", "path", "handler"},
	"server":   {"serve", "listener", "daemon"},
	"client":   {"conn", "connection"},
	"url":      {"uri", "link", "address"},
	"json":     {"marshal", "unmarshal", "serialize"},

	// Config
	"config":        {"cfg", "configuration", "settings", "options"},
	"cfg":           {"config", "configuration"},
	"configuration": {"config", "cfg", "settings"},
	"options":       {"opts", "config", "settings"},
	"opts":          {"options", "config"},
	"settings":      {"config", "options", "preferences"},
	"env":           {"environment", "variable"},
	"environment":   {"env", "variable"},

	// Concurrency
	"async":     {"asynchronous", "await", "concurrent"},
	"goroutine": {"thread", "worker", "concurrent"},
	"thread":    {"goroutine", "worker", "concurrent"},
	"mutex":     {"lock", "sync", "guard"},
	"lock":      {"mutex", "sync", "guard"},
	"channel":   {"chan", "queue", "pipe"},
	"worker":    {"job", "task", "pool"},
	"queue":     {"channel", "buffer", "fifo"},

	// Testing
	"test":    {"spec", "assert", "mock"},
	"mock":    {"stub", "fake", "test"},
	"assert":  {"expect", "require", "verify"},
	"fixture": {"testdata", "setup"},

	// I/O and misc
	"file":      {"path", "io", "fs"},
	"dir":       {"directory", "folder", "path"},
	"directory": {"dir", "folder", "path"},
	"read":      {"load", "parse", "open"},
	"write":     {"save", "persist", "store"},
	"delete":    {"remove", "del", "drop"},
	"remove":    {"delete", "del", "drop"},
	"init":      {"initialize", "setup", "new"},
	"util":      {"utility", "helper", "common"},
	"helper":    {"util", "utility"},
	"string":    {"str", "text"},
	"str":       {"string", "text"},
	"number":    {"num", "int", "float"},
	"log":       {"logger", "logging", "trace"},
	"logger":    {"log", "logging"},
	"validate":  {"validation", "check", "verify"},
	"parse":     {"parser", "decode", "read"},
	"serialize": {"marshal", "encode", "json"},
	"search":    {"find", "lookup", "query"},
	"find":      {"search", "lookup", "locate"},
	"index":     {"idx", "catalog"},
	"embed":     {"embedding", "vector"},
	"vector":    {"embedding", "vec"},
}
