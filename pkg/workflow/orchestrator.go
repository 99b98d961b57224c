package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"slackagent/pkg/logx"
)

// DefaultStepTimeout bounds each capability call.
const DefaultStepTimeout = 90 * time.Second

// Observer receives workflow metrics events.
type Observer interface {
	RequestStarted()
	RequestFinished(route string, failed bool, d time.Duration)
	StepFinished(step string, d time.Duration)
	StepFailed(kind ErrorKind)
}

type nopObserver struct{}

func (nopObserver) RequestStarted()                             {}
func (nopObserver) RequestFinished(string, bool, time.Duration) {}
func (nopObserver) StepFinished(string, time.Duration)          {}
func (nopObserver) StepFailed(ErrorKind)                        {}

// Orchestrator drives a request through the transition table, calling the
// configured capabilities. One Orchestrator serves many concurrent runs;
// each run owns its RequestState.
type Orchestrator struct {
	classifier Classifier
	formatter  Formatter
	responder  Responder
	generator  SQLGenerator
	confirmer  Confirmer
	executor   Executor
	researcher Researcher
	tasks      TaskCreator

	table          TransitionTable
	stepTimeout    time.Duration
	confirmTimeout time.Duration
	observer       Observer
	tracer         trace.Tracer
	logger         *logx.Logger
	transitions    chan<- Transition
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithResponder(r Responder) Option       { return func(o *Orchestrator) { o.responder = r } }
func WithSQLGenerator(g SQLGenerator) Option { return func(o *Orchestrator) { o.generator = g } }
func WithConfirmer(c Confirmer) Option       { return func(o *Orchestrator) { o.confirmer = c } }
func WithExecutor(e Executor) Option         { return func(o *Orchestrator) { o.executor = e } }
func WithResearcher(r Researcher) Option     { return func(o *Orchestrator) { o.researcher = r } }
func WithTaskCreator(t TaskCreator) Option   { return func(o *Orchestrator) { o.tasks = t } }
func WithObserver(obs Observer) Option       { return func(o *Orchestrator) { o.observer = obs } }
func WithTracer(t trace.Tracer) Option       { return func(o *Orchestrator) { o.tracer = t } }

// WithEdgeOrder selects the DataFirst or CodeFirst table.
func WithEdgeOrder(order EdgeOrder) Option {
	return func(o *Orchestrator) { o.table = TableFor(order) }
}

// WithTable installs a custom table. It is validated by New.
func WithTable(t TransitionTable) Option {
	return func(o *Orchestrator) { o.table = t }
}

// WithStepTimeout bounds every capability call except confirmation.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stepTimeout = d }
}

// WithConfirmTimeout bounds how long a confirmation may stay open.
func WithConfirmTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.confirmTimeout = d }
}

// WithTransitionChannel streams every transition of every run to ch.
func WithTransitionChannel(ch chan<- Transition) Option {
	return func(o *Orchestrator) { o.transitions = ch }
}

// New builds an orchestrator. Classifier and formatter are required; the
// other capabilities degrade to recorded failures when absent.
func New(classifier Classifier, formatter Formatter, opts ...Option) (*Orchestrator, error) {
	if classifier == nil {
		return nil, fmt.Errorf("%w: classifier", ErrNoCapability)
	}
	if formatter == nil {
		return nil, fmt.Errorf("%w: formatter", ErrNoCapability)
	}
	o := &Orchestrator{
		classifier:  classifier,
		formatter:   formatter,
		table:       DataFirstTable(),
		stepTimeout: DefaultStepTimeout,
		observer:    nopObserver{},
		tracer:      otel.Tracer("slackagent/workflow"),
		logger:      logx.NewLogger("workflow"),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transition table: %w", err)
	}
	return o, nil
}

// Run processes one request to completion. The returned state always holds
// a final response. Cancelling ctx skips the remaining capabilities and goes
// straight to formatting; the step in progress is allowed to finish.
func (o *Orchestrator) Run(ctx context.Context, req Request) *RequestState {
	state := NewRequestState(req)
	started := time.Now()
	o.observer.RequestStarted()

	ctx = logx.WithRequestID(ctx, state.ID())
	ctx, span := o.tracer.Start(ctx, "workflow.run",
		trace.WithAttributes(attribute.String("request.id", state.ID())))
	defer span.End()

	o.logger.Info("🚀 Processing request %s", state.ID())

	work := context.WithoutCancel(ctx)
	machine := NewMachine(state.ID(), o.table, o.logger)
	if o.transitions != nil {
		machine.SetNotificationChannel(o.transitions)
	}

	for {
		node := machine.Current()
		if node == NodeTerminal {
			break
		}

		next, err := o.advance(ctx, work, machine, node, state)
		if err != nil {
			o.logger.Error("❌ Request %s failed at %s: %v", state.ID(), node, err)
			state.terminate(node.StepName(), kindFor(node), err)
			span.RecordError(err)
			break
		}
		if err := machine.TransitionTo(work, next, nil); err != nil {
			o.logger.Error("❌ Request %s: %v", state.ID(), err)
			state.terminate(node.StepName(), kindFor(node), err)
			span.RecordError(err)
			break
		}
	}

	if state.finalResponse.IsNone() {
		state.terminate(StepFormat, ErrorKindFormattingFailure, errors.New("workflow ended without a reply"))
	}
	state.path = machine.Path()

	route := state.routeOrSimple().Label()
	failed := state.err.IsSome()
	span.SetAttributes(attribute.String("route", route), attribute.Bool("failed", failed))
	if failed {
		span.SetStatus(codes.Error, state.err.UnwrapOr(ErrorInfo{}).Error())
	}
	elapsed := time.Since(started)
	o.observer.RequestFinished(route, failed, elapsed)
	o.logger.Info("✅ Request %s finished via %s in %s", state.ID(), route, elapsed.Round(time.Millisecond))
	return state
}

// advance runs the step for node (if any) and picks the next node. A step
// error short-circuits to Formatting; an error at Formatting is fatal.
func (o *Orchestrator) advance(ctx, work context.Context, machine *Machine, node Node, state *RequestState) (Node, error) {
	if node != NodeStart {
		if err := o.runNode(work, node, state); err != nil {
			if node == NodeFormatting {
				return "", err
			}
			o.logger.Warn("⚠️ Step %s failed for %s: %v", node, state.ID(), err)
			patch := Failure(node.StepName(), kindFor(node), err.Error())
			if err := state.apply(patch); err != nil {
				return "", err
			}
			o.observer.StepFailed(kindFor(node))
			return NodeFormatting, nil
		}
	}

	next, err := machine.Next(state)
	if err != nil {
		return "", err
	}
	if ctx.Err() != nil && next != NodeFormatting && next != NodeTerminal && node != NodeStart {
		o.logger.Warn("⚠️ Request %s cancelled after %s, formatting partial results", state.ID(), node)
		if err := state.apply(Failure(node.StepName(), ErrorKindExecutionFailure, "request cancelled before completion")); err != nil {
			return "", err
		}
		o.observer.StepFailed(ErrorKindExecutionFailure)
		return NodeFormatting, nil
	}
	return next, nil
}

func (o *Orchestrator) runNode(ctx context.Context, node Node, state *RequestState) (err error) {
	ctx, span := o.tracer.Start(ctx, "workflow."+string(node))
	defer span.End()

	started := time.Now()
	before := len(state.transcript)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step %s panicked: %v", node, r)
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		o.observer.StepFinished(node.StepName(), time.Since(started))
	}()

	patch, err := o.step(ctx, node, state).Unpack()
	if err != nil {
		return err
	}
	if err := state.apply(patch); err != nil {
		return err
	}
	for _, m := range state.transcript[before:] {
		if m.Kind != ErrorKindNone {
			o.observer.StepFailed(m.Kind)
			span.SetStatus(codes.Error, m.Kind.String())
		}
	}
	return nil
}

func (o *Orchestrator) step(ctx context.Context, node Node, state *RequestState) fn.Result[Patch] {
	switch node {
	case NodeClassified:
		return o.classify(ctx, state)
	case NodeSQLGenerated:
		return o.generate(ctx, state)
	case NodeConfirm:
		return o.confirm(ctx, state)
	case NodeExecuted:
		return o.execute(ctx, state)
	case NodeResearched:
		return o.research(ctx, state)
	case NodeTaskCreated:
		return o.createTask(ctx, state)
	case NodeFormatting:
		return o.format(ctx, state)
	default:
		return fn.Err[Patch](fmt.Errorf("%w: no step for %s", ErrInvalidTransition, node))
	}
}

func (o *Orchestrator) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.stepTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.stepTimeout)
}

func kindFor(node Node) ErrorKind {
	switch node {
	case NodeClassified:
		return ErrorKindClassificationFailure
	case NodeSQLGenerated:
		return ErrorKindGenerationFailure
	case NodeConfirm:
		return ErrorKindConfirmationTimeout
	case NodeTaskCreated:
		return ErrorKindPersistenceFailure
	case NodeFormatting:
		return ErrorKindFormattingFailure
	default:
		return ErrorKindExecutionFailure
	}
}

var routeNames = map[string]string{
	"data": "データ検索",
	"code": "コード調査",
	"task": "タスク作成",
}

func describeRoute(r RouteDecision) string {
	parts := strings.Split(r.Label(), "+")
	for i, p := range parts {
		if name, ok := routeNames[p]; ok {
			parts[i] = name
		}
	}
	text := "対応内容: " + strings.Join(parts, " + ")
	if r.Reason != "" {
		text += "\n理由: " + r.Reason
	}
	return text
}

const (
	simpleAck   = "メッセージを受け取りました。データの集計やコードの調査が必要な場合は、具体的な内容を教えてください。"
	fallbackAck = "ご質問の種類を判断できなかったため、簡易応答としてお返しします。"
)

// classify always appends exactly one transcript entry.
func (o *Orchestrator) classify(ctx context.Context, state *RequestState) fn.Result[Patch] {
	cctx, cancel := o.bounded(ctx)
	defer cancel()

	route := o.classifier.Classify(cctx, state.Query())
	msg := StepMessage{StepName: StepClassify}
	if route.Fallback {
		msg.Kind = ErrorKindClassificationFailure
	}

	if route.IsSimple() {
		msg.Content = o.simpleReply(cctx, state.Query(), route)
	} else {
		msg.Content = describeRoute(route)
	}
	logx.Debug(ctx, "workflow", "route %s: %s", route.Label(), route.Reason)
	return fn.Ok(Patch{Route: fn.Some(route), Messages: []StepMessage{msg}})
}

func (o *Orchestrator) simpleReply(ctx context.Context, query string, route RouteDecision) string {
	if route.Fallback {
		if route.Reason != "" {
			return fallbackAck + "\n(" + route.Reason + ")"
		}
		return fallbackAck
	}
	if o.responder == nil {
		return simpleAck
	}
	reply, err := o.responder.Respond(ctx, query)
	if err != nil || strings.TrimSpace(reply) == "" {
		o.logger.Warn("⚠️ Direct reply unavailable: %v", err)
		return simpleAck
	}
	return strings.TrimSpace(reply)
}

func (o *Orchestrator) generate(ctx context.Context, state *RequestState) fn.Result[Patch] {
	if o.generator == nil {
		return fn.Ok(Failure(StepGenerate, ErrorKindGenerationFailure,
			"failed to generate SQL: data lookup is not configured"))
	}
	gctx, cancel := o.bounded(ctx)
	defer cancel()

	sql, err := o.generator.GenerateSQL(gctx, state.Query())
	sql = strings.TrimSpace(sql)
	switch {
	case err != nil:
		return fn.Ok(Failure(StepGenerate, ErrorKindGenerationFailure,
			fmt.Sprintf("failed to generate SQL: %v", err)))
	case sql == "":
		return fn.Ok(Failure(StepGenerate, ErrorKindGenerationFailure,
			"failed to generate SQL: the model returned no query"))
	}

	patch := Note(StepGenerate, "生成されたSQL:\n```sql\n"+sql+"\n```")
	patch.GeneratedSQL = fn.Some(sql)
	return fn.Ok(patch)
}

func (o *Orchestrator) confirm(ctx context.Context, state *RequestState) fn.Result[Patch] {
	if o.confirmer == nil {
		return fn.Ok(Failure(StepConfirm, ErrorKindConfirmationTimeout,
			"SQLの実行確認ができませんでした (no confirmer configured)"))
	}
	cctx := ctx
	if o.confirmTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, o.confirmTimeout)
		defer cancel()
	}

	req := state.Request()
	status := o.confirmer.Confirm(cctx, ConfirmationRequest{
		RequestID: state.ID(),
		SQL:       state.generatedSQL.UnwrapOr(""),
		Query:     req.Query,
		ChannelID: req.ChannelID,
		UserID:    req.UserID,
		ThreadTS:  req.ThreadTS,
	})

	switch status {
	case ConfirmationApproved:
		p := Note(StepConfirm, "SQLの実行が承認されました")
		p.Confirmation = fn.Some(ConfirmationApproved)
		return fn.Ok(p)
	case ConfirmationRejected:
		p := Note(StepConfirm, "SQLの実行は却下されました。クエリは実行されていません。")
		p.Confirmation = fn.Some(ConfirmationRejected)
		return fn.Ok(p)
	default:
		return fn.Ok(Failure(StepConfirm, ErrorKindConfirmationTimeout,
			"SQLの実行確認がタイムアウトしました。クエリは実行されていません。"))
	}
}

func (o *Orchestrator) execute(ctx context.Context, state *RequestState) fn.Result[Patch] {
	approved, err := approve(state)
	if err != nil {
		return fn.Err[Patch](err)
	}
	if o.executor == nil {
		return fn.Ok(Failure(StepExecute, ErrorKindExecutionFailure,
			"クエリを実行できませんでした: data store is not configured"))
	}
	ectx, cancel := o.bounded(ctx)
	defer cancel()

	res, err := o.executor.Execute(ectx, approved)
	if err != nil {
		return fn.Ok(Failure(StepExecute, ErrorKindExecutionFailure,
			fmt.Sprintf("クエリの実行に失敗しました: %v", err)))
	}
	p := Note(StepExecute, DescribeResult(res))
	p.DataResult = fn.Some(res)
	return fn.Ok(p)
}

// PreviewRows is how many rows DescribeResult prints.
const PreviewRows = 10

// DescribeResult renders a row count and a short preview.
func DescribeResult(res QueryResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "結果: %d 件", res.RowCount())
	if res.Truncated {
		b.WriteString(" (上限で打ち切り)")
	}
	for i, row := range res.Rows {
		if i == PreviewRows {
			fmt.Fprintf(&b, "\n... 他 %d 件", res.RowCount()-PreviewRows)
			break
		}
		cols := res.Columns
		if len(cols) == 0 {
			for k := range row {
				cols = append(cols, k)
			}
		}
		cells := make([]string, 0, len(cols))
		for _, c := range cols {
			cells = append(cells, fmt.Sprintf("%s=%v", c, row[c]))
		}
		b.WriteString("\n- " + strings.Join(cells, ", "))
	}
	return b.String()
}

const researchUnavailable = "コード調査は利用できません (code host is not configured)"

func (o *Orchestrator) research(ctx context.Context, state *RequestState) fn.Result[Patch] {
	analysis := researchUnavailable
	if o.researcher != nil {
		rctx, cancel := o.bounded(ctx)
		defer cancel()
		analysis = strings.TrimSpace(o.researcher.Research(rctx, state.Query()))
		if analysis == "" {
			analysis = researchUnavailable
		}
	}
	p := Note(StepResearch, analysis)
	p.CodeAnalysis = fn.Some(analysis)
	return fn.Ok(p)
}

func (o *Orchestrator) createTask(ctx context.Context, state *RequestState) fn.Result[Patch] {
	if o.tasks == nil {
		return fn.Ok(Note(StepCreateTask, "タスク管理が設定されていないため、タスクは作成されませんでした"))
	}
	tctx, cancel := o.bounded(ctx)
	defer cancel()

	rec, err := o.tasks.MaybeCreateTask(tctx, state.routeOrSimple(), state.codeAnalysis.UnwrapOr(""), state.Request())
	if err != nil {
		return fn.Ok(Failure(StepCreateTask, ErrorKindPersistenceFailure,
			fmt.Sprintf("タスクの作成に失敗しました: %v", err)))
	}
	if rec.IsNone() {
		return fn.Ok(Note(StepCreateTask, "対応が必要な項目が見つからなかったため、タスクは作成されませんでした"))
	}

	var p Patch
	rec.WhenSome(func(t TaskRecord) {
		text := "タスクを作成しました: " + t.Title
		if t.URL != "" {
			text += "\nタスク: " + t.URL
		}
		p = Note(StepCreateTask, text)
		p.TaskRecord = fn.Some(t)
	})
	return fn.Ok(p)
}

func (o *Orchestrator) format(ctx context.Context, state *RequestState) fn.Result[Patch] {
	fctx, cancel := o.bounded(ctx)
	defer cancel()

	text, err := o.formatter.Format(fctx, state.Transcript())
	if strings.TrimSpace(text) == "" {
		if err == nil {
			err = errors.New("formatter produced an empty reply")
		}
		return fn.Err[Patch](err)
	}

	p := Patch{FinalResponse: fn.Some(text)}
	if err != nil {
		p.Messages = []StepMessage{{StepName: StepFormat, Content: err.Error(), Kind: ErrorKindFormattingFailure}}
	}
	return fn.Ok(p)
}
