// Package vectorstore adapts Qdrant's gRPC API (C2 of the pipeline) to the
// Memory domain: points are addressed by memory id, and the payload carries
// the VectorMetadata needed for I5-ordered retrieval without a relational
// round trip.
package vectorstore

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/nidhogg/agent-memory/internal/model"
)

// Config holds connection settings for a Qdrant instance.
type Config struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Client wraps gRPC connections to Qdrant's collections and points services.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// NewClient dials the Qdrant gRPC endpoint and returns a ready Client.
func NewClient(cfg Config) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}, nil
}

// EnsureCollection creates the named collection, sized to dimension, if it
// does not already exist. Called once at startup against a fixed D (§9 open
// question resolved to 768, the bge-base-en-v1.5 output width). An existing
// collection is left as it is; its dimension is not compared with D.
func (c *Client) EnsureCollection(ctx context.Context, name string, dimension uint64) error {
	_, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}
	_, err = c.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     dimension,
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// Upsert inserts or updates a single point's vector and metadata payload.
// Upsert is idempotent on id, which is how the consumer's retry path (§4.3)
// stays safe to repeat after a crash between the vector and relational write.
func (c *Client) Upsert(ctx context.Context, collection, id string, vector []float32, meta model.VectorMetadata) error {
	_, err := c.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vector}}},
				Payload: encodeMetadata(meta),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert point %s in %s: %w", id, collection, err)
	}
	return nil
}

// Query performs a nearest-neighbor search and returns the top-K matches,
// each carrying the decoded VectorMetadata payload.
func (c *Client) Query(ctx context.Context, collection string, vector []float32, topK uint64) ([]model.VectorMatch, error) {
	resp, err := c.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collection,
		Vector:         vector,
		Limit:          topK,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	matches := make([]model.VectorMatch, 0, len(resp.Result))
	for _, r := range resp.Result {
		matches = append(matches, model.VectorMatch{
			ID:       r.Id.GetUuid(),
			Score:    r.Score,
			Metadata: decodeMetadata(r.Payload),
		})
	}
	return matches, nil
}

// DeleteByID removes a single point. Deleting an absent id is not an error;
// the curator's duplicate-removal step calls this after the relational
// delete and must tolerate being re-run after a crash.
func (c *Client) DeleteByID(ctx context.Context, collection, id string) error {
	_, err := c.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{
					Ids: []*pb.PointId{{PointIdOptions: &pb.PointId_Uuid{Uuid: id}}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete point %s from %s: %w", id, collection, err)
	}
	return nil
}

// Close tears down the underlying gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func encodeMetadata(meta model.VectorMetadata) map[string]*pb.Value {
	return map[string]*pb.Value{
		"created_at":    {Kind: &pb.Value_IntegerValue{IntegerValue: meta.CreatedAt}},
		"primary_tag":   {Kind: &pb.Value_StringValue{StringValue: meta.PrimaryTag}},
		"priority_rank": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(meta.PriorityRank)}},
	}
}

func decodeMetadata(payload map[string]*pb.Value) model.VectorMetadata {
	var meta model.VectorMetadata
	if v, ok := payload["created_at"]; ok {
		meta.CreatedAt = v.GetIntegerValue()
	}
	if v, ok := payload["primary_tag"]; ok {
		meta.PrimaryTag = v.GetStringValue()
	}
	if v, ok := payload["priority_rank"]; ok {
		meta.PriorityRank = int(v.GetIntegerValue())
	}
	return meta
}
