// Package bot is the Telegram control surface. Admins trigger syncs, award
// points, register event tables and manage people through commands; everyone
// else is ignored.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/NeF2le/guss-points/audit"
	"github.com/NeF2le/guss-points/database"
	"github.com/NeF2le/guss-points/googleapi"
	"github.com/NeF2le/guss-points/matching"
)

// Syncer runs one full reconciliation pass.
type Syncer interface {
	SyncAll(ctx context.Context) error
}

// Awarder credits attendance for a protocol or a registration table.
type Awarder interface {
	AwardProtocolPoints(ctx context.Context, protocolID int64, username string) (int, error)
	AwardTablePoints(ctx context.Context, tableID int64, username string) (int, error)
}

// Store is the storage surface the command handlers need.
type Store interface {
	GetPerson(ctx context.Context, personID int64) (*database.Person, error)
	InsertPerson(ctx context.Context, firstName, lastName string, vkID int64) (*database.Person, error)
	DeletePerson(ctx context.Context, personID int64) error
	UpdatePersonFirstName(ctx context.Context, personID int64, firstName string) error
	UpdatePersonLastName(ctx context.Context, personID int64, lastName string) error
	GetPersonPoints(ctx context.Context, personID, categoryID int64) (int, error)
	UpdatePersonPoints(ctx context.Context, personID, categoryID int64, delta int) error
	GetCategoryID(ctx context.Context, name string) (int64, error)

	GetCommittees(ctx context.Context) ([]database.Committee, error)
	AddMembership(ctx context.Context, personID, committeeID int64) error
	DeleteMembership(ctx context.Context, personID, committeeID int64) error

	GetProtocolByNumber(ctx context.Context, committeeID int64, number int) (*database.Protocol, error)
	GetCommitteeProtocols(ctx context.Context, committeeID int64) ([]database.Protocol, error)
	GetEventTypes(ctx context.Context) ([]database.EventType, error)
	GetRegistrationTables(ctx context.Context) ([]database.RegistrationTable, error)
	InsertRegistrationTable(ctx context.Context, title, tableURL string, eventTypeID int64) (*database.RegistrationTable, error)

	ListAuditLogs(ctx context.Context, limit int) ([]database.AuditRecord, error)
}

// TableVerifier checks a registration sheet's layout and reads its title.
type TableVerifier interface {
	VerifyRegistrationTable(ctx context.Context, tableURL string) (string, error)
}

type Bot struct {
	api      *tgbotapi.BotAPI
	store    Store
	verifier TableVerifier
	recorder *audit.Recorder

	protocolSync Syncer
	tableSync    Syncer
	awarder      Awarder

	adminIDs map[int64]bool
	log      *slog.Logger
}

type Params struct {
	Token        string
	AdminIDs     []int64
	Store        Store
	Verifier     TableVerifier
	Recorder     *audit.Recorder
	ProtocolSync Syncer
	TableSync    Syncer
	Awarder      Awarder
	Logger       *slog.Logger
}

func New(p Params) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(p.Token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	admins := make(map[int64]bool, len(p.AdminIDs))
	for _, id := range p.AdminIDs {
		admins[id] = true
	}

	return &Bot{
		api:          api,
		store:        p.Store,
		verifier:     p.Verifier,
		recorder:     p.Recorder,
		protocolSync: p.ProtocolSync,
		tableSync:    p.TableSync,
		awarder:      p.Awarder,
		adminIDs:     admins,
		log:          p.Logger,
	}, nil
}

// Run consumes the long-poll update stream until the context ends.
func (b *Bot) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := b.api.GetUpdatesChan(cfg)
	b.log.Info("bot started", slog.String("username", b.api.Self.UserName))

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if !b.adminIDs[msg.From.ID] {
		b.log.Warn("command from non-admin ignored",
			slog.Int64("user_id", msg.From.ID),
			slog.String("command", msg.Command()),
		)
		return
	}

	reply, err := b.dispatch(ctx, msg)
	if err != nil {
		b.log.Error("command failed",
			slog.String("command", msg.Command()),
			slog.Any("error", err),
		)
		reply = "Ошибка: " + err.Error()
	}
	if reply != "" {
		b.send(msg.Chat.ID, reply)
	}
}

func (b *Bot) dispatch(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	args := strings.Fields(msg.CommandArguments())
	username := msg.From.UserName
	if username == "" {
		username = strconv.FormatInt(msg.From.ID, 10)
	}

	switch msg.Command() {
	case "help", "start":
		return helpText, nil
	case "sync":
		return b.handleSync(ctx)
	case "add_person":
		return b.handleAddPerson(ctx, args, username)
	case "del_person":
		return b.handleDelPerson(ctx, args, username)
	case "set_first_name":
		return b.handleRename(ctx, args, username, true)
	case "set_last_name":
		return b.handleRename(ctx, args, username, false)
	case "points":
		return b.handlePoints(ctx, args)
	case "add_points":
		return b.handleAddPoints(ctx, args, username)
	case "add_committee_member":
		return b.handleMembership(ctx, args, username, true)
	case "del_committee_member":
		return b.handleMembership(ctx, args, username, false)
	case "committees":
		return b.handleCommittees(ctx)
	case "protocols":
		return b.handleProtocols(ctx, args)
	case "event_types":
		return b.handleEventTypes(ctx)
	case "award_protocol":
		return b.handleAwardProtocol(ctx, args, username)
	case "award_table":
		return b.handleAwardTable(ctx, args, username)
	case "add_table":
		return b.handleAddTable(ctx, args)
	case "tables":
		return b.handleTables(ctx)
	case "logs":
		return b.handleLogs(ctx, args)
	default:
		return "Неизвестная команда. /help", nil
	}
}

func (b *Bot) handleSync(ctx context.Context) (string, error) {
	if err := b.protocolSync.SyncAll(ctx); err != nil {
		return "", fmt.Errorf("sync protocols: %w", err)
	}
	if err := b.tableSync.SyncAll(ctx); err != nil {
		return "", fmt.Errorf("sync tables: %w", err)
	}
	return "Синхронизация завершена", nil
}

func (b *Bot) handleAddPerson(ctx context.Context, args []string, username string) (string, error) {
	if len(args) != 3 {
		return "Использование: /add_person <Имя> <Фамилия> <vk_id>", nil
	}
	name, err := matching.ParseRosterName(args[0] + " " + args[1])
	if err != nil {
		return "", err
	}
	vkID, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad vk id %q", args[2])
	}

	parts := strings.Fields(name)
	if !matching.ValidName(parts[0]) || !matching.ValidName(parts[1]) {
		return "Имя должно быть на кириллице", nil
	}
	person, err := b.store.InsertPerson(ctx, parts[0], parts[1], vkID)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return "Такой человек уже есть", nil
		}
		return "", err
	}
	if err := b.recorder.RecordCreation(ctx, audit.ActionInsertPerson, username, person.ID, ""); err != nil {
		return "", err
	}
	return fmt.Sprintf("Добавлен %s (id %d)", person.FullName(), person.ID), nil
}

func (b *Bot) handleDelPerson(ctx context.Context, args []string, username string) (string, error) {
	personID, err := singleID(args, "/del_person <id>")
	if err != nil {
		return err.Error(), nil
	}
	person, err := b.store.GetPerson(ctx, personID)
	if err != nil {
		return "", err
	}
	if person == nil {
		return "Человек не найден", nil
	}
	err = b.recorder.WithAudit(ctx, audit.ActionDeletePerson, username, &personID, "",
		func(ctx context.Context) error {
			return b.store.DeletePerson(ctx, personID)
		})
	if err != nil {
		return "", err
	}
	return "Удалён " + person.FullName(), nil
}

func (b *Bot) handleRename(ctx context.Context, args []string, username string, first bool) (string, error) {
	if len(args) != 2 {
		return "Использование: <person_id> <значение>", nil
	}
	personID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad person id %q", args[0])
	}
	value := matching.FormatPersonName(args[1])
	if !matching.ValidName(value) {
		return "Имя должно быть на кириллице", nil
	}

	action := audit.ActionUpdateFirstName
	op := b.store.UpdatePersonFirstName
	if !first {
		action = audit.ActionUpdateLastName
		op = b.store.UpdatePersonLastName
	}
	err = b.recorder.WithAudit(ctx, action, username, &personID, "",
		func(ctx context.Context) error {
			return op(ctx, personID, value)
		})
	if err != nil {
		return "", err
	}
	return "Сохранено: " + value, nil
}

func (b *Bot) handlePoints(ctx context.Context, args []string) (string, error) {
	personID, err := singleID(args, "/points <person_id>")
	if err != nil {
		return err.Error(), nil
	}
	person, err := b.store.GetPerson(ctx, personID)
	if err != nil {
		return "", err
	}
	if person == nil {
		return "Человек не найден", nil
	}
	categoryID, err := b.store.GetCategoryID(ctx, database.AttendanceCategory)
	if err != nil {
		return "", err
	}
	points, err := b.store.GetPersonPoints(ctx, personID, categoryID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s — %s: %d", person.FullName(), database.AttendanceCategory, points), nil
}

// handleAddPoints applies a signed manual correction to a person's
// attendance balance. The stored balance floors at zero.
func (b *Bot) handleAddPoints(ctx context.Context, args []string, username string) (string, error) {
	if len(args) != 2 {
		return "Использование: /add_points <person_id> <дельта>", nil
	}
	personID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad person id %q", args[0])
	}
	delta, err := strconv.Atoi(args[1])
	if err != nil || delta == 0 {
		return "Использование: /add_points <person_id> <дельта>", nil
	}
	person, err := b.store.GetPerson(ctx, personID)
	if err != nil {
		return "", err
	}
	if person == nil {
		return "Человек не найден", nil
	}
	categoryID, err := b.store.GetCategoryID(ctx, database.AttendanceCategory)
	if err != nil {
		return "", err
	}

	err = b.recorder.WithAudit(ctx, audit.ActionUpdatePersonPoints, username, &personID, "Ручная корректировка",
		func(ctx context.Context) error {
			return b.store.UpdatePersonPoints(ctx, personID, categoryID, delta)
		})
	if err != nil {
		return "", err
	}
	points, err := b.store.GetPersonPoints(ctx, personID, categoryID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s — %s: %d", person.FullName(), database.AttendanceCategory, points), nil
}

func (b *Bot) handleMembership(ctx context.Context, args []string, username string, add bool) (string, error) {
	if len(args) != 2 {
		return "Использование: <person_id> <committee_id>", nil
	}
	personID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad person id %q", args[0])
	}
	committeeID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad committee id %q", args[1])
	}

	action := audit.ActionInsertMembership
	op := b.store.AddMembership
	replyText := "Добавлен в комитет"
	if !add {
		action = audit.ActionDeleteMembership
		op = b.store.DeleteMembership
		replyText = "Удалён из комитета"
	}
	err = b.recorder.WithAudit(ctx, action, username, &personID, "",
		func(ctx context.Context) error {
			return op(ctx, personID, committeeID)
		})
	if err != nil {
		return "", err
	}
	return replyText, nil
}

func (b *Bot) handleCommittees(ctx context.Context) (string, error) {
	committees, err := b.store.GetCommittees(ctx)
	if err != nil {
		return "", err
	}
	if len(committees) == 0 {
		return "Комитетов нет", nil
	}
	var sb strings.Builder
	for _, c := range committees {
		fmt.Fprintf(&sb, "%d: %s\n", c.ID, c.Name)
	}
	return sb.String(), nil
}

func (b *Bot) handleProtocols(ctx context.Context, args []string) (string, error) {
	committeeID, err := singleID(args, "/protocols <committee_id>")
	if err != nil {
		return err.Error(), nil
	}
	protocols, err := b.store.GetCommitteeProtocols(ctx, committeeID)
	if err != nil {
		return "", err
	}
	if len(protocols) == 0 {
		return "Протоколов нет", nil
	}
	var sb strings.Builder
	for _, p := range protocols {
		fmt.Fprintf(&sb, "№%d от %s\n", p.Number, p.Date.Format("02.01.2006"))
	}
	return sb.String(), nil
}

func (b *Bot) handleEventTypes(ctx context.Context) (string, error) {
	eventTypes, err := b.store.GetEventTypes(ctx)
	if err != nil {
		return "", err
	}
	if len(eventTypes) == 0 {
		return "Типов мероприятий нет", nil
	}
	var sb strings.Builder
	for _, et := range eventTypes {
		fmt.Fprintf(&sb, "%d: %s (+%d)\n", et.ID, et.Name, et.Points)
	}
	return sb.String(), nil
}

func (b *Bot) handleAwardProtocol(ctx context.Context, args []string, username string) (string, error) {
	if len(args) != 2 {
		return "Использование: /award_protocol <committee_id> <номер>", nil
	}
	committeeID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad committee id %q", args[0])
	}
	number, err := strconv.Atoi(args[1])
	if err != nil {
		return "", fmt.Errorf("bad protocol number %q", args[1])
	}

	protocol, err := b.store.GetProtocolByNumber(ctx, committeeID, number)
	if err != nil {
		return "", err
	}
	if protocol == nil {
		return "Протокол не найден", nil
	}

	credited, err := b.awarder.AwardProtocolPoints(ctx, protocol.ID, username)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Баллы начислены: %d чел.", credited), nil
}

func (b *Bot) handleAwardTable(ctx context.Context, args []string, username string) (string, error) {
	tableID, err := singleID(args, "/award_table <table_id>")
	if err != nil {
		return err.Error(), nil
	}
	credited, err := b.awarder.AwardTablePoints(ctx, tableID, username)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Баллы начислены: %d чел.", credited), nil
}

func (b *Bot) handleAddTable(ctx context.Context, args []string) (string, error) {
	if len(args) != 2 {
		return "Использование: /add_table <url> <event_type_id>", nil
	}
	tableURL := args[0]
	eventTypeID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad event type id %q", args[1])
	}

	title, err := b.verifier.VerifyRegistrationTable(ctx, tableURL)
	if err != nil {
		if errors.Is(err, googleapi.ErrBadTableLayout) {
			return "В таблице нет колонок ФИО и Отметка", nil
		}
		if errors.Is(err, googleapi.ErrNotFound) || errors.Is(err, googleapi.ErrPermissionDenied) {
			return "Таблица недоступна", nil
		}
		return "", err
	}

	table, err := b.store.InsertRegistrationTable(ctx, title, tableURL, eventTypeID)
	if err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			return "Эта таблица уже зарегистрирована", nil
		}
		return "", err
	}
	return fmt.Sprintf("Таблица «%s» добавлена (id %d)", table.Title, table.ID), nil
}

func (b *Bot) handleTables(ctx context.Context) (string, error) {
	tables, err := b.store.GetRegistrationTables(ctx)
	if err != nil {
		return "", err
	}
	if len(tables) == 0 {
		return "Таблиц нет", nil
	}
	var sb strings.Builder
	for _, table := range tables {
		fmt.Fprintf(&sb, "%d: %s (+%d)\n", table.ID, table.Title, table.EventPoints)
	}
	return sb.String(), nil
}

func (b *Bot) handleLogs(ctx context.Context, args []string) (string, error) {
	limit := 10
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return "Использование: /logs [количество]", nil
		}
		limit = n
	}
	logs, err := b.store.ListAuditLogs(ctx, limit)
	if err != nil {
		return "", err
	}
	if len(logs) == 0 {
		return "Журнал пуст", nil
	}

	var sb strings.Builder
	for _, record := range logs {
		fmt.Fprintf(&sb, "%s — %s (%s)",
			record.ChangedAt.Format("02.01.2006 15:04"), record.ActionType, record.ChangedBy)
		if record.Comment != "" {
			sb.WriteString(": " + record.Comment)
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error("send failed", slog.Int64("chat_id", chatID), slog.Any("error", err))
	}
}

func singleID(args []string, usage string) (int64, error) {
	if len(args) != 1 {
		return 0, errors.New("Использование: " + usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad id %q", args[0])
	}
	return id, nil
}

const helpText = `Команды:
/sync — синхронизировать протоколы и таблицы
/add_person <Имя> <Фамилия> <vk_id>
/del_person <id>
/set_first_name <person_id> <Имя>
/set_last_name <person_id> <Фамилия>
/points <person_id> — баллы посещаемости
/add_points <person_id> <дельта> — ручная корректировка баллов
/add_committee_member <person_id> <committee_id>
/del_committee_member <person_id> <committee_id>
/committees — список комитетов
/protocols <committee_id> — протоколы комитета
/event_types — типы мероприятий
/award_protocol <committee_id> <номер> — начислить баллы за протокол
/award_table <table_id> — начислить баллы за мероприятие
/add_table <url> <event_type_id> — зарегистрировать таблицу
/tables — список таблиц
/logs [n] — последние записи журнала`
