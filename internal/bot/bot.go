package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/nyawka/phonixshop/internal/config"
	"github.com/nyawka/phonixshop/internal/fulfillment"
	"github.com/nyawka/phonixshop/internal/ledger"
	"github.com/nyawka/phonixshop/internal/logging"
	"github.com/nyawka/phonixshop/internal/payments"
	"github.com/nyawka/phonixshop/internal/sessions"
)

// handlerTimeout bounds one chat interaction, including external calls.
const handlerTimeout = 60 * time.Second

// Bot is the user-facing chat surface. It renders menus and texts and
// delegates every decision to the core.
type Bot struct {
	tele   *tele.Bot
	cfg    *config.Config
	ledger *ledger.Ledger
	engine *fulfillment.Engine
	recon  *payments.Reconciler
	states StateStore
	log    *slog.Logger
}

func New(cfg *config.Config, l *ledger.Ledger, engine *fulfillment.Engine, recon *payments.Reconciler, states StateStore, log *slog.Logger) (*Bot, error) {
	tb, err := tele.NewBot(tele.Settings{
		Token:     cfg.BotToken,
		Poller:    &tele.LongPoller{Timeout: 10 * time.Second},
		ParseMode: tele.ModeHTML,
	})
	if err != nil {
		return nil, fmt.Errorf("создание бота: %w", err)
	}

	b := &Bot{
		tele:   tb,
		cfg:    cfg,
		ledger: l,
		engine: engine,
		recon:  recon,
		states: states,
		log:    log,
	}
	b.register()
	return b, nil
}

func (b *Bot) Start() { b.tele.Start() }
func (b *Bot) Stop()  { b.tele.Stop() }

func (b *Bot) register() {
	b.tele.Handle("/start", b.onStart)

	b.tele.Handle(&btnMainMenu, b.onMainMenu)
	b.tele.Handle(&btnProfile, b.onProfile)
	b.tele.Handle(&btnTopUp, b.onTopUpMenu)

	b.tele.Handle(&btnPayCrypto, b.onPayCrypto)
	b.tele.Handle(&btnPayTon, b.onPayTon)
	b.tele.Handle(&btnPayStars, b.onPayStars)
	b.tele.Handle(&btnCheckCrypto, b.onCheckCrypto)
	b.tele.Handle(&btnCheckTon, b.onCheckTon)

	b.tele.Handle(&btnCatalog, b.onCatalog)
	b.tele.Handle(&btnCategory, b.onCategory)
	b.tele.Handle(&btnProduct, b.onProduct)
	b.tele.Handle(&btnBuy, b.onBuy)

	b.tele.Handle(&btnInventory, b.onInventory)
	b.tele.Handle(&btnMyItem, b.onMyItem)
	b.tele.Handle(&btnDlSession, b.onDownloadSession)
	b.tele.Handle(&btnDlTdata, b.onDownloadTdata)
	b.tele.Handle(&btnGetCode, b.onGetCode)

	b.tele.Handle(tele.OnText, b.onText)
	b.tele.Handle(tele.OnCheckout, b.onCheckout)
	b.tele.Handle(tele.OnPayment, b.onPayment)
}

func (b *Bot) ctx() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	return logging.IntoContext(ctx, b.log), cancel
}

// --- Меню и профиль ---

func (b *Bot) onStart(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	if err := b.ledger.EnsureUser(ctx, c.Sender().ID, c.Sender().Username); err != nil {
		b.log.Error("ensure user failed", "user_id", c.Sender().ID, "error", err)
	}
	text := fmt.Sprintf("👋 Привет, %s!\nДобро пожаловать в PhonixShop.", c.Sender().FirstName)
	return c.Send(text, mainMenu(b.cfg.SupportLink))
}

func (b *Bot) onMainMenu(c tele.Context) error {
	return c.Edit("🏠 Главное меню:", mainMenu(b.cfg.SupportLink))
}

func (b *Bot) onProfile(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	balance, err := b.ledger.Balance(ctx, c.Sender().ID)
	if err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}
	text := fmt.Sprintf("👤 <b>Личный кабинет</b>\n🆔 Ваш ID: <code>%d</code>\n💰 Баланс: <b>%.2f₽</b>",
		c.Sender().ID, balance)
	return c.Edit(text, profileMenu())
}

func (b *Bot) onTopUpMenu(c tele.Context) error {
	return c.Edit("💸 <b>Выберите способ пополнения:</b>", topUpMenu())
}

// --- Пополнение ---

func (b *Bot) onPayCrypto(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	if err := b.states.Set(ctx, c.Sender().ID, StateAwaitCryptoAmount); err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}
	return c.Edit("💰 Введите сумму пополнения в <b>рублях</b>:")
}

func (b *Bot) onPayTon(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	if err := b.states.Set(ctx, c.Sender().ID, StateAwaitTonAmount); err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}
	return c.Edit("💰 Введите сумму пополнения в <b>рублях</b>:")
}

func (b *Bot) onPayStars(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	if err := b.states.Set(ctx, c.Sender().ID, StateAwaitStars); err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}
	return c.Edit("⭐ Введите количество <b>Telegram Stars</b> (XTR), которое хотите потратить:")
}

func (b *Bot) onText(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	userID := c.Sender().ID
	state, err := b.states.Get(ctx, userID)
	if err != nil || state == StateNone {
		return nil
	}

	amount, err := strconv.Atoi(c.Text())
	if err != nil || amount <= 0 {
		return c.Send("❌ Введите целое число.")
	}

	if err := b.states.Clear(ctx, userID); err != nil {
		b.log.Warn("state clear failed", "user_id", userID, "error", err)
	}

	switch state {
	case StateAwaitCryptoAmount:
		return b.startCrypto(ctx, c, float64(amount))
	case StateAwaitTonAmount:
		return b.startTon(ctx, c, float64(amount))
	case StateAwaitStars:
		return b.startStars(ctx, c, amount)
	}
	return nil
}

func (b *Bot) startCrypto(ctx context.Context, c tele.Context, rub float64) error {
	topup, err := b.recon.StartInvoiceTopUp(ctx, c.Sender().ID, rub)
	if err != nil {
		b.log.Error("invoice top-up failed", "user_id", c.Sender().ID, "error", err)
		return c.Send("⚠️ Не удалось создать счёт. Попробуйте позже.")
	}
	text := fmt.Sprintf("💎 <b>Оплата CryptoBot</b>\nСумма: %.0f₽ (~%s USDT)", topup.Rub, topup.USDTAmount)
	return c.Send(text, paymentActions(topup.PayURL, btnCheckCrypto.Unique, topup.InvoiceID))
}

func (b *Bot) startTon(ctx context.Context, c tele.Context, rub float64) error {
	topup, err := b.recon.StartTonTopUp(ctx, c.Sender().ID, rub)
	if err != nil {
		b.log.Error("ton top-up failed", "user_id", c.Sender().ID, "error", err)
		return c.Send("⚠️ Не удалось подготовить перевод. Попробуйте позже.")
	}
	text := fmt.Sprintf(
		"🌐 <b>Пополнение через TON</b>\n\n"+
			"💵 Сумма: <code>%v</code> TON (~%.0f₽)\n"+
			"👛 Адрес: <code>%s</code>\n"+
			"📝 Комментарий: <code>%s</code>\n\n"+
			"⚠️ Отправьте монеты с указанным комментарием!",
		topup.TonAmount, topup.Rub, topup.Address, topup.Comment)
	return c.Send(text, paymentActions(topup.TransferURL, btnCheckTon.Unique, topup.Comment))
}

func (b *Bot) startStars(ctx context.Context, c tele.Context, stars int) error {
	topup, err := b.recon.StartStarsTopUp(ctx, c.Sender().ID, stars)
	if err != nil {
		b.log.Error("stars top-up failed", "user_id", c.Sender().ID, "error", err)
		return c.Send("⚠️ Не удалось выставить счёт. Попробуйте позже.")
	}

	inv := &tele.Invoice{
		Title:       "Пополнение баланса ⭐",
		Description: fmt.Sprintf("Зачисление %.2f₽ на ваш баланс в боте.", topup.Rub),
		Payload:     topup.Payload,
		Currency:    "XTR",
		Prices: []tele.Price{
			{Label: "Звезды PhonixShop", Amount: topup.Stars},
		},
	}
	return c.Send(inv)
}

// onCheckout answers the platform pre-authorization. The answer has a
// hard 10 second deadline, so nothing here may touch the Ledger or any
// external system.
func (b *Bot) onCheckout(c tele.Context) error {
	return c.Accept()
}

func (b *Bot) onPayment(c tele.Context) error {
	payment := c.Message().Payment
	if payment == nil {
		return nil
	}

	ctx, cancel := b.ctx()
	defer cancel()

	res, err := b.recon.ConfirmStars(ctx, payment.Payload)
	if err != nil {
		b.log.Error("stars confirmation failed", "user_id", c.Sender().ID, "error", err)
		return c.Send("⚠️ Платёж получен, но зачисление не прошло. Напишите в поддержку.")
	}

	switch res.Status {
	case payments.TopUpCredited:
		return c.Send(fmt.Sprintf("✅ Успешно! Вы потратили %d ⭐.\nНа ваш баланс зачислено <b>%.2f₽</b>.",
			payment.Total, res.Amount))
	case payments.TopUpAlreadyCredited:
		return c.Send("✅ Этот платёж уже был зачислен.")
	default:
		return c.Send("⚠️ Платёж не распознан. Напишите в поддержку.")
	}
}

func (b *Bot) onCheckCrypto(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	res, err := b.recon.CheckInvoice(ctx, c.Data())
	if err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}
	return b.renderTopUp(c, res, "⏳ Оплата еще не произведена.")
}

func (b *Bot) onCheckTon(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	res, err := b.recon.CheckTon(ctx, c.Data())
	if err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}
	return b.renderTopUp(c, res, "⏳ Платеж пока не найден в сети TON.")
}

func (b *Bot) renderTopUp(c tele.Context, res *payments.TopUpResult, pendingText string) error {
	switch res.Status {
	case payments.TopUpCredited:
		return c.Edit(fmt.Sprintf("✅ Успешно! На баланс зачислено %.2f₽", res.Amount), mainMenu(b.cfg.SupportLink))
	case payments.TopUpAlreadyCredited:
		return b.alert(c, "✅ Этот платёж уже был зачислен.")
	case payments.TopUpNotFound:
		return b.alert(c, "❌ Счёт не найден.")
	default:
		return b.alert(c, pendingText)
	}
}

// --- Каталог и покупка ---

func (b *Bot) onCatalog(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	cats, err := b.ledger.Categories(ctx)
	if err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}
	return c.Edit("🛒 <b>Каталог товаров:</b>", catalogMenu(cats))
}

func (b *Bot) onCategory(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	catID, err := parseID(c.Data())
	if err != nil {
		return nil
	}
	prods, err := b.ledger.ProductsByCategory(ctx, catID)
	if err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}
	return c.Edit("📦 <b>Выберите товар:</b>", productsMenu(prods))
}

func (b *Bot) onProduct(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	prodID, err := parseID(c.Data())
	if err != nil {
		return nil
	}
	prod, err := b.ledger.Product(ctx, prodID)
	if err != nil {
		return b.alert(c, "❌ Товар не найден.")
	}
	count, err := b.ledger.AvailableCount(ctx, prod.ID)
	if err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}

	text := fmt.Sprintf("<b>%s</b>\n\n%s\n\n💰 Цена: %.0f₽\n📦 В наличии: %d",
		prod.Name, prod.Description, prod.Price, count)
	return c.Edit(text, buyMenu(prod.ID))
}

func (b *Bot) onBuy(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	prodID, err := parseID(c.Data())
	if err != nil {
		return nil
	}

	out := b.engine.Purchase(ctx, c.Sender().ID, prodID)
	switch out.Status {
	case fulfillment.Purchased:
		return c.Edit("✅ Покупка совершена! Аккаунт добавлен в ваши покупки.", mainMenu(b.cfg.SupportLink))
	case fulfillment.InsufficientBalance:
		return b.alert(c, "❌ Недостаточно средств на балансе!")
	case fulfillment.OutOfStock:
		return b.alert(c, "❌ К сожалению, этот товар закончился.")
	case fulfillment.ProductNotFound:
		return b.alert(c, "❌ Товар не найден.")
	default:
		return b.alert(c, "❌ Произошла системная ошибка.")
	}
}

// --- Покупки ---

func (b *Bot) onInventory(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	items, err := b.ledger.UserInventory(ctx, c.Sender().ID)
	if err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}
	return c.Edit("📦 <b>Ваши покупки:</b>", inventoryMenu(items))
}

func (b *Bot) onMyItem(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	unitID, err := parseID(c.Data())
	if err != nil {
		return nil
	}
	unit, err := b.engine.BoughtUnit(ctx, unitID, c.Sender().ID)
	if err != nil {
		return b.alert(c, "❌ Товар не найден.")
	}
	prod, err := b.ledger.Product(ctx, unit.ProductID)
	if err != nil {
		return b.alert(c, "⚠️ Попробуйте позже.")
	}

	text := fmt.Sprintf("📱 <b>Товар:</b> %s\n📞 <b>Номер:</b> %s\n📅 <b>Дата:</b> %s",
		prod.Name, unit.PhoneNumber, unit.SoldAt.Format("02.01.2006 15:04"))
	return c.Edit(text, itemControls(unit.ID))
}

func (b *Bot) onDownloadSession(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	unitID, err := parseID(c.Data())
	if err != nil {
		return nil
	}
	path, err := b.engine.SessionFile(ctx, unitID, c.Sender().ID)
	if err != nil {
		return b.alert(c, "❌ Файл не найден на сервере.")
	}

	doc := &tele.Document{File: tele.FromDisk(path), FileName: fmt.Sprintf("account_%d.session", unitID)}
	return c.Send(doc)
}

func (b *Bot) onDownloadTdata(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	unitID, err := parseID(c.Data())
	if err != nil {
		return nil
	}
	path, err := b.engine.ArchiveFile(ctx, unitID, c.Sender().ID)
	if err != nil {
		return b.alert(c, "❌ Ошибка при создании архива.")
	}

	doc := &tele.Document{File: tele.FromDisk(path), FileName: fmt.Sprintf("tdata_%d.zip", unitID)}
	return c.Send(doc)
}

func (b *Bot) onGetCode(c tele.Context) error {
	ctx, cancel := b.ctx()
	defer cancel()

	unitID, err := parseID(c.Data())
	if err != nil {
		return nil
	}

	if err := c.Edit("📡 <b>Подключаюсь к сессии для получения кода...</b>"); err != nil {
		b.log.Warn("edit failed", "error", err)
	}

	res, err := b.engine.LoginCode(ctx, unitID, c.Sender().ID)
	if err != nil {
		return c.Edit("❌ Товар не найден.", codeMenu(unitID))
	}

	return c.Edit(formatCodeResult(res), codeMenu(unitID))
}

func formatCodeResult(res sessions.CodeResult) string {
	switch res.Status {
	case sessions.CodeFound:
		return fmt.Sprintf("🔔 <b>Ваш код:</b> <code>%s</code>\n🕒 Получен: %s",
			res.Code, res.ReceivedAt.Format("15:04:05"))
	case sessions.CodeUnauthorized:
		return "❌ Сессия неавторизована."
	case sessions.CodeNotFound:
		return "⏳ Код не найден. Отправьте код в приложении и нажмите 'Обновить'."
	default:
		return "⚠️ Ошибка соединения. Попробуйте ещё раз."
	}
}

func (b *Bot) alert(c tele.Context, text string) error {
	return c.Respond(&tele.CallbackResponse{Text: text, ShowAlert: true})
}

func parseID(data string) (uint, error) {
	id, err := strconv.ParseUint(data, 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
