// Package neo4jstore mirrors the in-memory knowledge graph into a Neo4j
// database. Every write uses MERGE so replayed or retried mutations
// converge on the same graph.
package neo4jstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/sanonone/pharmakg/pkg/graph"
)

// Config holds the connection parameters for a Neo4j backend.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// Store implements graph.Backend on a Neo4j database.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// New connects to Neo4j, verifies connectivity and installs uniqueness
// constraints per node label. Constraint creation is best-effort: it may
// fail for restricted users, and the MERGE queries stay correct without
// it, only slower.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.SocketConnectTimeout = 10 * time.Second
		})
	if err != nil {
		return nil, fmt.Errorf("neo4jstore: init driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jstore: verify connectivity: %w", err)
	}

	s := &Store{driver: driver, database: cfg.Database, logger: logger}
	s.initSchema(ctx)
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	for _, label := range []graph.NodeType{
		graph.NodeGene, graph.NodeVariant, graph.NodeDrug, graph.NodeDisease, graph.NodeStudy,
	} {
		q := fmt.Sprintf(
			`CREATE CONSTRAINT %s_key_unique IF NOT EXISTS FOR (n:%s) REQUIRE n.key IS UNIQUE`,
			label, label)
		if res, err := session.Run(ctx, q, nil); err != nil {
			s.logger.Warn("neo4j schema init failed (continuing)", "label", label, "error", err)
		} else {
			_, _ = res.Consume(ctx)
		}
	}
}

// UpsertNode merges the node by (label, key) and overlays its attributes.
func (s *Store) UpsertNode(ctx context.Context, v graph.NodeView) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	// Labels cannot be parameterized; NodeType is a closed set of safe
	// identifiers.
	q := fmt.Sprintf(`MERGE (n:%s {key: $key}) SET n += $attrs`, v.Type)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, q, map[string]any{
			"key":   v.Key,
			"attrs": map[string]any(v.Attrs),
		})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("neo4jstore: upsert node %s/%s: %w", v.Type, v.Key, err)
	}
	return nil
}

// UpsertRelationship merges both endpoints, the relationship, and the
// SUPPORTED_BY links to its studies.
func (s *Store) UpsertRelationship(ctx context.Context, v graph.EdgeView) error {
	from, to := v.Type.Endpoints()

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		q := fmt.Sprintf(`
MERGE (a:%s {key: $from})
MERGE (b:%s {key: $to})
MERGE (a)-[e:%s]->(b)
SET e += $attrs
`, from, to, v.Type)
		res, err := tx.Run(ctx, q, map[string]any{
			"from":  v.From,
			"to":    v.To,
			"attrs": map[string]any(v.Attrs),
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(v.Studies) > 0 {
			q := fmt.Sprintf(`
MATCH (a:%s {key: $from})-[e:%s]->(b:%s {key: $to})
UNWIND $studies AS sk
MERGE (s:Study {key: sk})
MERGE (a)-[:SUPPORTED_BY {edge_type: $edgeType, edge_to: $to}]->(s)
`, from, v.Type, to)
			res, err := tx.Run(ctx, q, map[string]any{
				"from":     v.From,
				"to":       v.To,
				"studies":  v.Studies,
				"edgeType": string(v.Type),
			})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4jstore: upsert edge %s %s->%s: %w", v.Type, v.From, v.To, err)
	}
	return nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	err := s.driver.Close(ctx)
	s.driver = nil
	return err
}
