package types

type DataResponse struct {
	Status  bool        `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type RebuildResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// RebuildStatus is a point-in-time copy of the rebuild state machine.
type RebuildStatus struct {
	Running        bool     `json:"running"`
	LastStartedAt  *float64 `json:"last_started_at"`
	LastFinishedAt *float64 `json:"last_finished_at"`
	LastError      *string  `json:"last_error"`
	LogsTail       []string `json:"logs_tail"`
	Stage          string   `json:"stage"`
	Current        int      `json:"current"`
	Total          int      `json:"total"`
	Percent        int      `json:"percent"`
}

type StatusDefaults struct {
	TopK         int `json:"top_k"`
	ChunkSize    int `json:"chunk_size"`
	ChunkOverlap int `json:"chunk_overlap"`
}

type StatusResponse struct {
	DataDir              string         `json:"data_dir"`
	DataDirExists        bool           `json:"data_dir_exists"`
	VectorStore          string         `json:"vector_store"`
	VectorDBPath         string         `json:"vector_db_path"`
	VectorDBExists       bool           `json:"vector_db_exists"`
	Collection           string         `json:"collection"`
	CollectionCount      *int           `json:"collection_count"`
	CollectionCountError *string        `json:"collection_count_error"`
	Provider             string         `json:"provider"`
	Model                string         `json:"model"`
	EmbeddingModel       string         `json:"embedding_model"`
	APIBase              string         `json:"api_base"`
	Defaults             StatusDefaults `json:"defaults"`
	Rebuild              RebuildStatus  `json:"rebuild"`
}

type PingResponse struct {
	OK bool    `json:"ok"`
	Ts float64 `json:"ts"`
}
