package repository

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

const defaultVectorDimension = 1536

// QdrantConnectionConfig holds configuration for the Qdrant connection.
type QdrantConnectionConfig struct {
	Host            string
	Port            int
	Collection      string
	APIKey          string // Qdrant Cloud API key (enables TLS automatically)
	UseTLS          bool   // explicitly enable TLS without API key
	VectorDimension int
}

func apiKeyInterceptor(apiKey string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", apiKey)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// SegmentVectorRepository maintains the vector index over transcript
// segments. Upserts are best-effort from the pipeline's perspective; the
// relational store remains the source of truth for segment rows.
type SegmentVectorRepository struct {
	conn            *grpc.ClientConn
	pointsClient    pb.PointsClient
	collectClient   pb.CollectionsClient
	collectionName  string
	vectorDimension int
}

// NewSegmentVectorRepository connects to Qdrant. Supports both local
// deployments (insecure) and Qdrant Cloud (TLS + API key).
func NewSegmentVectorRepository(cfg *QdrantConnectionConfig) (*SegmentVectorRepository, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	vectorDimension := cfg.VectorDimension
	if vectorDimension <= 0 {
		vectorDimension = defaultVectorDimension
	}

	var opts []grpc.DialOption
	useTLS := cfg.UseTLS || cfg.APIKey != ""
	if useTLS {
		creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS13})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		if cfg.APIKey != "" {
			opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
		}
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}

	return &SegmentVectorRepository{
		conn:            conn,
		pointsClient:    pb.NewPointsClient(conn),
		collectClient:   pb.NewCollectionsClient(conn),
		collectionName:  cfg.Collection,
		vectorDimension: vectorDimension,
	}, nil
}

// Close closes the gRPC connection.
func (r *SegmentVectorRepository) Close() error {
	return r.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist and verifies
// the vector size when it does.
func (r *SegmentVectorRepository) EnsureCollection(ctx context.Context) error {
	info, err := r.collectClient.Get(ctx, &pb.GetCollectionInfoRequest{
		CollectionName: r.collectionName,
	})
	if err == nil {
		if size, ok := collectionVectorSize(info.GetResult()); ok {
			if size != uint64(r.vectorDimension) {
				return fmt.Errorf("collection %s has vector size %d, expected %d", r.collectionName, size, r.vectorDimension)
			}
		}
		return nil
	}

	_, err = r.collectClient.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collectionName,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(r.vectorDimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

func collectionVectorSize(info *pb.CollectionInfo) (uint64, bool) {
	if info == nil {
		return 0, false
	}
	config := info.GetConfig()
	if config == nil {
		return 0, false
	}
	params := config.GetParams()
	if params == nil {
		return 0, false
	}
	vectors := params.GetVectorsConfig()
	if vectors == nil {
		return 0, false
	}
	if single := vectors.GetParams(); single != nil {
		if size := single.GetSize(); size > 0 {
			return size, true
		}
	}
	return 0, false
}

// SegmentPayload is the payload stored with each segment vector.
type SegmentPayload struct {
	SegmentID    string
	EpisodeID    string
	Speaker      string
	Content      string
	StartSeconds float64
	EndSeconds   float64
}

// Upsert inserts or updates one segment vector. The point id is the
// segment's UUID so re-processing an episode overwrites its points.
func (r *SegmentVectorRepository) Upsert(ctx context.Context, segmentID string, vector []float32, payload *SegmentPayload) error {
	uid, err := uuid.Parse(segmentID)
	if err != nil {
		return fmt.Errorf("invalid point ID: %w", err)
	}

	points := []*pb.PointStruct{
		{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: uid.String()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vector},
				},
			},
			Payload: map[string]*pb.Value{
				"segment_id":    {Kind: &pb.Value_StringValue{StringValue: payload.SegmentID}},
				"episode_id":    {Kind: &pb.Value_StringValue{StringValue: payload.EpisodeID}},
				"speaker":       {Kind: &pb.Value_StringValue{StringValue: payload.Speaker}},
				"content":       {Kind: &pb.Value_StringValue{StringValue: payload.Content}},
				"start_seconds": {Kind: &pb.Value_DoubleValue{DoubleValue: payload.StartSeconds}},
				"end_seconds":   {Kind: &pb.Value_DoubleValue{DoubleValue: payload.EndSeconds}},
			},
		},
	}

	_, err = r.pointsClient.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collectionName,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert point: %w", err)
	}
	return nil
}

// VectorHit is one similarity search result.
type VectorHit struct {
	SegmentID string
	EpisodeID string
	Score     float32
}

// Search performs a vector similarity search, optionally scoped to one episode.
func (r *SegmentVectorRepository) Search(ctx context.Context, vector []float32, topK int, episodeID string) ([]VectorHit, error) {
	req := &pb.SearchPoints{
		CollectionName: r.collectionName,
		Vector:         vector,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	}

	if episodeID != "" {
		req.Filter = &pb.Filter{
			Must: []*pb.Condition{
				{
					ConditionOneOf: &pb.Condition_Field{
						Field: &pb.FieldCondition{
							Key: "episode_id",
							Match: &pb.Match{
								MatchValue: &pb.Match_Keyword{Keyword: episodeID},
							},
						},
					},
				},
			},
		}
	}

	resp, err := r.pointsClient.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	hits := make([]VectorHit, len(resp.Result))
	for i, scored := range resp.Result {
		hits[i] = VectorHit{
			SegmentID: scored.Id.GetUuid(),
			Score:     scored.Score,
		}
		if payload := scored.Payload; payload != nil {
			if v, ok := payload["episode_id"]; ok {
				hits[i].EpisodeID = v.GetStringValue()
			}
		}
	}

	return hits, nil
}

// DeleteByEpisode removes all points belonging to one episode, used before
// a force reprocess rebuilds the index.
func (r *SegmentVectorRepository) DeleteByEpisode(ctx context.Context, episodeID string) error {
	_, err := r.pointsClient.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collectionName,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						{
							ConditionOneOf: &pb.Condition_Field{
								Field: &pb.FieldCondition{
									Key: "episode_id",
									Match: &pb.Match{
										MatchValue: &pb.Match_Keyword{Keyword: episodeID},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to delete points: %w", err)
	}
	return nil
}
