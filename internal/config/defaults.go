package config

// MaxBatchDefault is the insertion ceiling per store call. SQLite caps a
// statement at 32766 bound parameters; with six columns per entry that allows
// 5461 rows per multi-row insert.
const MaxBatchDefault = 5461

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 4000
	}
	if cfg.Storage.VectorDBPath == "" {
		cfg.Storage.VectorDBPath = "./storage/vectors.db"
	}
	if cfg.Storage.CachePath == "" {
		cfg.Storage.CachePath = "./storage/cache.db"
	}
	if cfg.Storage.MessageDBPath == "" {
		cfg.Storage.MessageDBPath = "./storage/messages.db"
	}
	if cfg.Storage.Collection == "" {
		cfg.Storage.Collection = "legal-texts"
	}
	if cfg.Storage.MaxBatch == 0 {
		cfg.Storage.MaxBatch = MaxBatchDefault
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 800
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 120
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "EMBEDDING_API_KEY"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "multilingual-e5-base"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 768
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.TimeoutSeconds == 0 {
		cfg.Embedding.TimeoutSeconds = 30
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Retrieval.DefaultTopK == 0 {
		cfg.Retrieval.DefaultTopK = 5
	}
	if cfg.Retrieval.MaxTopK == 0 {
		cfg.Retrieval.MaxTopK = 50
	}
	if cfg.Retrieval.ContextBudget == 0 {
		cfg.Retrieval.ContextBudget = 8000
	}
	if cfg.Rerank.Model == "" {
		cfg.Rerank.Model = "ms-marco-MiniLM-L-6-v2"
	}
	if cfg.Rerank.APIKeyEnv == "" {
		cfg.Rerank.APIKeyEnv = "RERANK_API_KEY"
	}
	if cfg.Rerank.TimeoutSeconds == 0 {
		cfg.Rerank.TimeoutSeconds = 15
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 3600
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 60
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx"}
	}
}
