package azuresearch

const (
	algorithmName   = "ragkit-vector-algorithm"
	profileName     = "ragkit-vector-profile"
	compressionName = "ragkit-vector-compression"
)

// Vector search algorithms.
const (
	AlgorithmExhaustiveKNN = "exhaustive_knn"
	AlgorithmHNSW          = "hnsw"
)

// Vector compressions.
const (
	CompressionNone   = "none"
	CompressionScalar = "scalar"
	CompressionBinary = "binary"
)

type indexDefinition struct {
	Name         string         `json:"name"`
	Fields       []indexField   `json:"fields"`
	VectorSearch vectorSearch   `json:"vectorSearch"`
	Semantic     *semanticBlock `json:"semantic,omitempty"`
}

type indexField struct {
	Name                string `json:"name"`
	Type                string `json:"type"`
	Key                 bool   `json:"key,omitempty"`
	Searchable          bool   `json:"searchable"`
	Filterable          bool   `json:"filterable"`
	Retrievable         bool   `json:"retrievable"`
	Analyzer            string `json:"analyzer,omitempty"`
	Dimensions          int    `json:"dimensions,omitempty"`
	VectorSearchProfile string `json:"vectorSearchProfile,omitempty"`
}

type vectorSearch struct {
	Algorithms   []vectorAlgorithm   `json:"algorithms"`
	Profiles     []vectorProfile     `json:"profiles"`
	Compressions []vectorCompression `json:"compressions,omitempty"`
}

type vectorAlgorithm struct {
	Name                    string          `json:"name"`
	Kind                    string          `json:"kind"`
	HNSWParameters          *hnswParameters `json:"hnswParameters,omitempty"`
	ExhaustiveKNNParameters *knnParameters  `json:"exhaustiveKnnParameters,omitempty"`
}

type hnswParameters struct {
	M              int    `json:"m"`
	EfConstruction int    `json:"efConstruction"`
	EfSearch       int    `json:"efSearch"`
	Metric         string `json:"metric"`
}

type knnParameters struct {
	Metric string `json:"metric"`
}

type vectorProfile struct {
	Name        string `json:"name"`
	Algorithm   string `json:"algorithm"`
	Compression string `json:"compression,omitempty"`
}

type vectorCompression struct {
	Name                         string                 `json:"name"`
	Kind                         string                 `json:"kind"`
	RerankWithOriginalVectors    bool                   `json:"rerankWithOriginalVectors"`
	DefaultOversampling          float64                `json:"defaultOversampling"`
	ScalarQuantizationParameters *scalarQuantParameters `json:"scalarQuantizationParameters,omitempty"`
}

type scalarQuantParameters struct {
	QuantizedDataType string `json:"quantizedDataType"`
}

type semanticBlock struct {
	Configurations []semanticConfiguration `json:"configurations"`
}

type semanticConfiguration struct {
	Name              string            `json:"name"`
	PrioritizedFields prioritizedFields `json:"prioritizedFields"`
}

type prioritizedFields struct {
	ContentFields []semanticField `json:"prioritizedContentFields"`
}

type semanticField struct {
	FieldName string `json:"fieldName"`
}

// indexDefinition builds the index schema for the store's field layout.
func (s *Store) indexDefinition() indexDefinition {
	o := s.opts
	fields := []indexField{
		{Name: o.IDFieldKey, Type: "Edm.String", Key: true, Filterable: true, Retrievable: true},
		{Name: o.ChunkFieldKey, Type: "Edm.String", Searchable: true, Retrievable: true, Analyzer: o.LanguageAnalyzer},
		{
			Name:                o.EmbeddingFieldKey,
			Type:                "Collection(Edm.Single)",
			Searchable:          true,
			Dimensions:          o.EmbeddingDimensionality,
			VectorSearchProfile: profileName,
		},
		{Name: o.MetadataStringFieldKey, Type: "Edm.String", Retrievable: true},
		{Name: o.DocIDFieldKey, Type: "Edm.String", Filterable: true, Retrievable: true},
	}
	for _, key := range sortedKeys(o.FilterableMetadata) {
		mf := o.FilterableMetadata[key]
		fields = append(fields, indexField{Name: mf.Field, Type: edmType(mf.Type), Filterable: true, Retrievable: true})
	}

	algo := vectorAlgorithm{Name: algorithmName}
	if o.VectorAlgorithm == AlgorithmHNSW {
		algo.Kind = "hnsw"
		algo.HNSWParameters = &hnswParameters{M: 4, EfConstruction: 400, EfSearch: 500, Metric: "cosine"}
	} else {
		algo.Kind = "exhaustiveKnn"
		algo.ExhaustiveKNNParameters = &knnParameters{Metric: "cosine"}
	}
	vs := vectorSearch{
		Algorithms: []vectorAlgorithm{algo},
		Profiles:   []vectorProfile{{Name: profileName, Algorithm: algorithmName}},
	}
	if comp := s.compression(); comp != nil {
		vs.Compressions = []vectorCompression{*comp}
		vs.Profiles[0].Compression = compressionName
	}

	def := indexDefinition{Name: o.IndexName, Fields: fields, VectorSearch: vs}
	if o.SemanticConfiguration != "" {
		def.Semantic = &semanticBlock{Configurations: []semanticConfiguration{{
			Name: o.SemanticConfiguration,
			PrioritizedFields: prioritizedFields{
				ContentFields: []semanticField{{FieldName: o.ChunkFieldKey}},
			},
		}}}
	}
	return def
}

func (s *Store) compression() *vectorCompression {
	switch s.opts.Compression {
	case CompressionScalar:
		return &vectorCompression{
			Name:                         compressionName,
			Kind:                         "scalarQuantization",
			RerankWithOriginalVectors:    true,
			DefaultOversampling:          10,
			ScalarQuantizationParameters: &scalarQuantParameters{QuantizedDataType: "int8"},
		}
	case CompressionBinary:
		return &vectorCompression{
			Name:                      compressionName,
			Kind:                      "binaryQuantization",
			RerankWithOriginalVectors: true,
			DefaultOversampling:       10,
		}
	default:
		return nil
	}
}
