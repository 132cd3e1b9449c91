package converse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
	"github.com/siherrmann/converse/core/booking"
	"github.com/siherrmann/converse/core/eval"
	"github.com/siherrmann/converse/core/index"
	"github.com/siherrmann/converse/core/memory"
	"github.com/siherrmann/converse/core/pipeline"
	"github.com/siherrmann/converse/core/retrieval"
	"github.com/siherrmann/converse/database"
	"github.com/siherrmann/converse/helper"
	"github.com/siherrmann/converse/llm"
	"github.com/siherrmann/converse/model"
	loadSql "github.com/siherrmann/converse/sql"
)

// Config holds the orchestrator-level settings. Chunking and embedding live
// on the pipeline, retrieval parameters in Query, conversation retention in
// Memory.
type Config struct {
	Query  model.QueryConfig  `json:"query"`
	Memory model.MemoryConfig `json:"memory"`

	// HistoryTurns is the maximum number of turns pulled into the prompt.
	HistoryTurns int `json:"history_turns"`
	// HistoryTokenBudget bounds the formatted history in the prompt; when the
	// budget is smaller than HistoryTurns allows, the oldest turns within the
	// window are dropped first.
	HistoryTokenBudget int `json:"history_token_budget"`

	GenerationRetries    int           `json:"generation_retries"`
	GenerationRetryDelay time.Duration `json:"generation_retry_delay"`

	// EmbeddingRetries bounds the retry attempts against an unavailable
	// embedding backend before the query degrades.
	EmbeddingRetries    int           `json:"embedding_retries"`
	EmbeddingRetryDelay time.Duration `json:"embedding_retry_delay"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() Config {
	return Config{
		Query:                model.DefaultQueryConfig(),
		Memory:               model.DefaultMemoryConfig(),
		HistoryTurns:         10,
		HistoryTokenBudget:   1500,
		GenerationRetries:    3,
		GenerationRetryDelay: 500 * time.Millisecond,
		EmbeddingRetries:     3,
		EmbeddingRetryDelay:  200 * time.Millisecond,
	}
}

// Notifier is called after a booking has been persisted. Delivery (email,
// webhook) is up to the implementation.
type Notifier interface {
	NotifyBooking(ctx context.Context, booking *database.Booking) error
}

// Converse wires the chunking pipeline, vector index, conversation memory,
// retrieval engine and generation collaborator into one conversational
// retrieval interface. Database handlers are optional; without them all state
// is in-memory.
type Converse struct {
	DB        *helper.Database
	Documents *database.DocumentsDBHandler
	Chunks    *database.ChunksDBHandler
	Bookings  *database.BookingsDBHandler

	Pipeline *pipeline.Pipeline
	Index    *index.Index
	Engine   *retrieval.Engine
	Memory   *memory.Store

	config    Config
	generator llm.Generator
	notifier  Notifier
	log       *slog.Logger
}

// New creates an in-memory Converse instance without database persistence.
func New(config Config, pipe *pipeline.Pipeline, generator llm.Generator) (*Converse, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	return newConverse(config, pipe, generator, logger)
}

// NewWithDatabase creates a Converse instance backed by postgres. Documents,
// chunks and bookings are persisted through the database handlers; retrieval
// still runs against the in-memory index (see LoadIndexFromDatabase for warm
// starts).
func NewWithDatabase(config Config, dbConfig *helper.DatabaseConfiguration, pipe *pipeline.Pipeline, generator llm.Generator) (*Converse, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	c, err := newConverse(config, pipe, generator, logger)
	if err != nil {
		return nil, err
	}

	db := helper.NewDatabase("converse", dbConfig, logger)
	if err := loadSql.Init(db.Instance); err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Documents first, chunks reference them.
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}
	chunks, err := database.NewChunksDBHandler(db, pipe.Dimension, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}
	bookings, err := database.NewBookingsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create bookings handler", err)
	}

	c.DB = db
	c.Documents = documents
	c.Chunks = chunks
	c.Bookings = bookings
	return c, nil
}

func newConverse(config Config, pipe *pipeline.Pipeline, generator llm.Generator, logger *slog.Logger) (*Converse, error) {
	if pipe == nil {
		return nil, fmt.Errorf("%w: pipeline is required", model.ErrInvalidConfig)
	}
	if generator == nil {
		return nil, fmt.Errorf("%w: generator is required", model.ErrInvalidConfig)
	}
	if config.HistoryTurns <= 0 {
		return nil, fmt.Errorf("%w: history turns must be positive, got %d", model.ErrInvalidConfig, config.HistoryTurns)
	}
	if config.HistoryTokenBudget <= 0 {
		return nil, fmt.Errorf("%w: history token budget must be positive, got %d", model.ErrInvalidConfig, config.HistoryTokenBudget)
	}
	if _, err := model.ParseSimilarityMetric(string(config.Query.Metric)); err != nil {
		return nil, err
	}
	if config.Query.TopK <= 0 {
		return nil, fmt.Errorf("%w: top k must be positive, got %d", model.ErrInvalidConfig, config.Query.TopK)
	}

	// Copy the pipeline before wrapping so the caller's instance keeps its
	// bare embedder.
	retryPipe := *pipe
	retryPipe.Embedder = pipeline.WithRetry(pipe.Embedder, config.EmbeddingRetries, config.EmbeddingRetryDelay)
	pipe = &retryPipe

	idx, err := index.NewIndex(pipe.Dimension)
	if err != nil {
		return nil, helper.NewError("create vector index", err)
	}

	store, err := memory.NewStore(config.Memory, logger)
	if err != nil {
		return nil, helper.NewError("create conversation memory", err)
	}
	store.StartSweeper()

	return &Converse{
		Pipeline:  pipe,
		Index:     idx,
		Engine:    retrieval.NewEngine(idx, logger),
		Memory:    store,
		config:    config,
		generator: llm.WithRetry(generator, config.GenerationRetries, config.GenerationRetryDelay),
		log:       logger,
	}, nil
}

// SetNotifier sets the booking notification collaborator.
func (c *Converse) SetNotifier(notifier Notifier) {
	c.notifier = notifier
}

// Close stops the memory sweeper and closes the database connection.
func (c *Converse) Close() error {
	c.Memory.Stop()
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// IngestDocument chunks and embeds a document and upserts the result into the
// vector index. With a database attached, document metadata and chunks are
// persisted as well. Returns the number of chunks produced.
func (c *Converse) IngestDocument(doc *model.Document) (int, error) {
	if doc == nil || doc.RawText == "" {
		return 0, helper.NewError("ingest document", fmt.Errorf("document has no text"))
	}

	chunks, err := c.Pipeline.Process(doc)
	if err != nil {
		return 0, helper.NewError("process document", err)
	}

	if err := c.Index.UpsertAll(chunks); err != nil {
		return 0, helper.NewError("index chunks", err)
	}

	if c.Documents != nil {
		if err := c.Documents.InsertDocument(doc); err != nil {
			return 0, helper.NewError("persist document", err)
		}
		for i, chunk := range chunks {
			if err := c.Chunks.UpsertChunk(chunk); err != nil {
				return 0, helper.NewError(fmt.Sprintf("persist chunk %d", i), err)
			}
		}
	}

	c.log.Info(
		"Ingested document",
		slog.String("document_id", doc.RID.String()),
		slog.String("title", doc.Title),
		slog.Int("num_chunks", len(chunks)),
	)

	return len(chunks), nil
}

// IngestFile extracts text from a file (plain text or PDF, by extension) and
// ingests it as a new document. Returns the document and its chunk count.
func (c *Converse) IngestFile(filePath string) (*model.Document, int, error) {
	doc, err := model.NewDocumentFromFile(filePath)
	if err != nil {
		return nil, 0, helper.NewError("read file", err)
	}

	contentType := mime.TypeByExtension(filepath.Ext(filePath))
	if contentType == "" {
		contentType = "text/plain"
	}
	text, err := pipeline.ExtractText([]byte(doc.RawText), contentType)
	if err != nil {
		return nil, 0, helper.NewError("extract text", err)
	}
	doc.RawText = text

	count, err := c.IngestDocument(doc)
	if err != nil {
		return nil, 0, err
	}
	return doc, count, nil
}

// DeleteDocument removes a document's chunks from the index and, with a
// database attached, the persisted document and chunks. Returns the number of
// chunks removed from the index.
func (c *Converse) DeleteDocument(rid uuid.UUID) (int, error) {
	removed := c.Index.DeleteDocument(rid)

	if c.Documents != nil {
		if _, err := c.Chunks.DeleteChunksByDocument(rid); err != nil {
			return removed, helper.NewError("delete persisted chunks", err)
		}
		if _, err := c.Documents.DeleteDocument(rid); err != nil {
			return removed, helper.NewError("delete persisted document", err)
		}
	}

	return removed, nil
}

// LoadIndexFromDatabase rebuilds the in-memory index from persisted chunks.
// Intended for warm starts after a restart. Returns the number of chunks
// loaded.
func (c *Converse) LoadIndexFromDatabase() (int, error) {
	if c.Documents == nil {
		return 0, helper.NewError("load index", fmt.Errorf("no database attached"))
	}

	loaded := 0
	var lastIngestedAt *time.Time
	var lastID int64
	for {
		documents, err := c.Documents.SelectAllDocuments(lastIngestedAt, lastID, 100)
		if err != nil {
			return loaded, helper.NewError("select documents", err)
		}
		if len(documents) == 0 {
			return loaded, nil
		}
		for _, doc := range documents {
			chunks, err := c.Chunks.SelectChunksByDocument(doc.RID)
			if err != nil {
				return loaded, helper.NewError("select chunks", err)
			}
			if err := c.Index.UpsertAll(chunks); err != nil {
				return loaded, helper.NewError("index chunks", err)
			}
			loaded += len(chunks)
		}
		last := documents[len(documents)-1]
		ingestedAt := last.IngestedAt
		lastIngestedAt = &ingestedAt
		lastID = last.ID
	}
}

// Chat runs one conversational exchange: resolve the conversation, retrieve
// context, generate a response and record the user/assistant pair atomically.
// A nil conversationID starts a new conversation, as does an unknown or
// expired one. Generation failures produce a best-effort degraded response
// built from the retrieved context; degraded exchanges are not recorded.
func (c *Converse) Chat(ctx context.Context, query string, conversationID *uuid.UUID) (*model.ChatResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, helper.NewError("chat", fmt.Errorf("query is empty"))
	}

	convID, history := c.resolveConversation(conversationID)

	if booking.DetectIntent(query) {
		return c.handleBooking(ctx, query, convID)
	}

	meta := metaConversationQuery(query)

	// Follow-up questions often refer to earlier turns; fold the most recent
	// user turns into the retrieval query.
	enhanced := query
	if len(history) > 0 && !meta {
		enhanced = enhanceQuery(query, history)
	}

	var documentContext string
	var sources []*model.RetrievalResult
	if meta {
		documentContext = "This is a question about the conversation itself. Here's the conversation history:\n" + formatHistory(history)
	} else {
		// EmbedQuery already names the operation in its error.
		embedding, err := c.Pipeline.EmbedQuery(enhanced)
		if err != nil {
			return nil, err
		}
		sources, err = c.Engine.Retrieve(ctx, embedding, &c.config.Query)
		if err != nil {
			return nil, helper.NewError("retrieve context", err)
		}
		documentContext = formatSources(sources)
	}

	systemPrompt := fmt.Sprintf(systemPromptTemplate, documentContext)
	userPrompt := c.buildUserPrompt(query, history)

	response, err := c.generator.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		// Cancellation is the caller's decision, not a degraded service.
		if ctx.Err() != nil {
			return nil, helper.NewError("generate response", err)
		}

		c.log.Warn(
			"generation failed, returning degraded response",
			slog.String("conversation_id", convID.String()),
			slog.Any("error", err),
		)
		return &model.ChatResult{
			Response:       degradedResponse(documentContext),
			ConversationID: convID,
			Sources:        sources,
			Degraded:       true,
		}, nil
	}

	convID = c.recordExchange(convID, query, response)

	return &model.ChatResult{
		Response:       response,
		ConversationID: convID,
		Sources:        sources,
	}, nil
}

// Evaluate benchmarks retrieval quality over the given configurations using
// the facade's embedder. Each configuration gets its own index built from
// scratch.
func (c *Converse) Evaluate(documents []*model.Document, queries []model.EvaluationQuery, configs []model.EvaluationConfig) (*model.EvaluationReport, error) {
	options := eval.DefaultOptions(c.Pipeline.Dimension)
	options.TopK = c.config.Query.TopK

	harness, err := eval.NewHarness(c.Pipeline.Embedder, options, c.log)
	if err != nil {
		return nil, helper.NewError("create evaluation harness", err)
	}
	return harness.Run(documents, queries, configs)
}

// resolveConversation returns an existing active conversation with its
// history, or a fresh one when the id is nil, unknown or expired.
func (c *Converse) resolveConversation(id *uuid.UUID) (uuid.UUID, []model.ConversationTurn) {
	if id != nil {
		history, err := c.Memory.History(*id, c.config.HistoryTurns)
		if err == nil {
			return *id, history
		}
		c.log.Debug(
			"starting fresh conversation",
			slog.String("requested_id", id.String()),
			slog.Any("reason", err),
		)
	}
	return c.Memory.Create(), nil
}

// recordExchange appends the user/assistant pair atomically. When the
// conversation expired between retrieval and generation, the exchange lands
// in a fresh conversation instead of being lost.
func (c *Converse) recordExchange(convID uuid.UUID, query, response string) uuid.UUID {
	_, _, err := c.Memory.AppendExchange(convID, query, response)
	if err == nil {
		return convID
	}
	if errors.Is(err, model.ErrConversationExpired) || errors.Is(err, model.ErrConversationNotFound) {
		fresh := c.Memory.Create()
		if _, _, err := c.Memory.AppendExchange(fresh, query, response); err != nil {
			c.log.Error("record exchange in fresh conversation", slog.Any("error", err))
		}
		return fresh
	}
	c.log.Error("record exchange", slog.String("conversation_id", convID.String()), slog.Any("error", err))
	return convID
}

func (c *Converse) handleBooking(ctx context.Context, query string, convID uuid.UUID) (*model.ChatResult, error) {
	request := booking.ExtractRequest(query, convID)
	response, complete := booking.Respond(request)

	if complete && c.Bookings != nil {
		persisted, err := c.Bookings.InsertBooking(request)
		if err != nil {
			c.log.Error(
				"persist booking",
				slog.String("conversation_id", convID.String()),
				slog.Any("error", err),
			)
		} else if c.notifier != nil {
			if err := c.notifier.NotifyBooking(ctx, persisted); err != nil {
				c.log.Warn("booking notification", slog.Any("error", err))
			}
		}
	}

	convID = c.recordExchange(convID, query, response)

	return &model.ChatResult{
		Response:       response,
		ConversationID: convID,
	}, nil
}

const systemPromptTemplate = `You are an intelligent assistant that answers questions based on the provided context and conversation history.

For questions about documents or general knowledge, use the information in the DOCUMENT CONTEXT.
For questions about previous messages or the conversation itself, use the conversation history.

If neither the context nor conversation history contains the needed information, say you don't have enough information.
Be concise, accurate, and helpful.

DOCUMENT CONTEXT:
%s`

// buildUserPrompt prepends the bounded conversation history to the question.
// The history is trimmed to the token budget, oldest turns first.
func (c *Converse) buildUserPrompt(query string, history []model.ConversationTurn) string {
	bounded := boundHistory(history, c.config.HistoryTokenBudget)
	if len(bounded) == 0 {
		return fmt.Sprintf("QUESTION: %s\n\nANSWER:", query)
	}
	return fmt.Sprintf("CONVERSATION HISTORY:\n%s\n\nQUESTION: %s\n\nANSWER:", formatHistory(bounded), query)
}

// boundHistory keeps the most recent turns whose formatted text fits into the
// token budget. Falls back to a character estimate when the tokenizer is
// unavailable.
func boundHistory(history []model.ConversationTurn, tokenBudget int) []model.ConversationTurn {
	if len(history) == 0 {
		return nil
	}

	used := 0
	start := len(history)
	for i := len(history) - 1; i >= 0; i-- {
		cost := countTokens(formatTurn(history[i]))
		if used+cost > tokenBudget {
			break
		}
		used += cost
		start = i
	}
	return history[start:]
}

func countTokens(text string) int {
	enc, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
	if err != nil {
		// Rough estimate, ~4 characters per token.
		return len(text)/4 + 1
	}
	return len(enc.Encode(text, nil, nil))
}

func formatTurn(turn model.ConversationTurn) string {
	return fmt.Sprintf("%s: %s", turn.Role, turn.Text)
}

func formatHistory(history []model.ConversationTurn) string {
	lines := make([]string, len(history))
	for i, turn := range history {
		lines[i] = formatTurn(turn)
	}
	return strings.Join(lines, "\n")
}

func formatSources(sources []*model.RetrievalResult) string {
	if len(sources) == 0 {
		return "No relevant documents found."
	}
	texts := make([]string, len(sources))
	for i, source := range sources {
		texts[i] = source.Text
	}
	return strings.Join(texts, "\n\n")
}

func degradedResponse(documentContext string) string {
	return "Based on the available information:\n\n" + documentContext
}

// enhanceQuery joins the last two user turns with the current query so
// follow-up questions retrieve against their full subject.
func enhanceQuery(query string, history []model.ConversationTurn) string {
	var userTexts []string
	for _, turn := range history {
		if turn.Role == model.RoleUser {
			userTexts = append(userTexts, turn.Text)
		}
	}
	if len(userTexts) > 2 {
		userTexts = userTexts[len(userTexts)-2:]
	}
	if len(userTexts) == 0 {
		return query
	}
	return strings.Join(append(userTexts, query), " ")
}

var metaKeywords = []string{
	"conversation", "chat", "talking", "discussed", "said",
	"mentioned", "asked", "told", "question", "answer",
	"previous", "before", "earlier", "first", "second", "third",
	"last time", "summary", "summarize", "history",
}

var metaPhrases = []string{
	"what did i", "what did you", "what was my", "what was your",
	"you said", "i said", "did i say", "did you say",
	"our conversation", "we talked", "we discussed",
	"tell me what", "repeat what", "summarize our",
}

// metaConversationQuery detects questions about the conversation itself,
// which are answered from history instead of document context.
func metaConversationQuery(query string) bool {
	queryLower := strings.ToLower(query)
	for _, phrase := range metaPhrases {
		if strings.Contains(queryLower, phrase) {
			return true
		}
	}
	for _, keyword := range metaKeywords {
		if strings.Contains(queryLower, keyword) {
			return true
		}
	}
	return false
}
