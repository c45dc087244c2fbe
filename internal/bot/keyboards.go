package bot

import (
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v3"

	"github.com/nyawka/phonixshop/internal/ledger"
	"github.com/nyawka/phonixshop/internal/models"
)

// Callback button identities. Handlers are registered against these
// uniques; data arguments are attached when a keyboard is built.
var (
	btnMainMenu  = tele.Btn{Unique: "main_menu"}
	btnProfile   = tele.Btn{Unique: "profile"}
	btnTopUp     = tele.Btn{Unique: "topup_menu"}
	btnCatalog   = tele.Btn{Unique: "catalog_start"}
	btnInventory = tele.Btn{Unique: "inventory"}

	btnPayCrypto = tele.Btn{Unique: "pay_crypto"}
	btnPayTon    = tele.Btn{Unique: "pay_ton"}
	btnPayStars  = tele.Btn{Unique: "pay_stars"}

	btnCheckCrypto = tele.Btn{Unique: "check_cry"}
	btnCheckTon    = tele.Btn{Unique: "check_ton"}

	btnCategory = tele.Btn{Unique: "cat"}
	btnProduct  = tele.Btn{Unique: "prod"}
	btnBuy      = tele.Btn{Unique: "buy"}

	btnMyItem    = tele.Btn{Unique: "myitem"}
	btnDlSession = tele.Btn{Unique: "dl_sess"}
	btnDlTdata   = tele.Btn{Unique: "dl_tdata"}
	btnGetCode   = tele.Btn{Unique: "get_code"}
)

func mainMenu(supportLink string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	rows := []tele.Row{
		m.Row(m.Data("🛒 Каталог", btnCatalog.Unique)),
		m.Row(m.Data("👤 Профиль", btnProfile.Unique), m.Data("📦 Мои покупки", btnInventory.Unique)),
	}
	if supportLink != "" {
		rows = append(rows, m.Row(m.URL("🆘 Поддержка", supportLink)))
	}
	m.Inline(rows...)
	return m
}

func profileMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(
		m.Row(m.Data("💸 Пополнить баланс", btnTopUp.Unique)),
		m.Row(m.Data("⬅️ Назад", btnMainMenu.Unique)),
	)
	return m
}

func topUpMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(
		m.Row(m.Data("💎 CryptoBot", btnPayCrypto.Unique)),
		m.Row(m.Data("🌐 TON", btnPayTon.Unique)),
		m.Row(m.Data("⭐ Telegram Stars", btnPayStars.Unique)),
		m.Row(m.Data("⬅️ Назад", btnProfile.Unique)),
	)
	return m
}

func paymentActions(payURL, checkUnique, checkData string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	m.Inline(
		m.Row(m.URL("💳 Оплатить", payURL)),
		m.Row(m.Data("🔄 Проверить оплату", checkUnique, checkData)),
		m.Row(m.Data("⬅️ В меню", btnMainMenu.Unique)),
	)
	return m
}

func catalogMenu(cats []models.Category) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, cat := range cats {
		rows = append(rows, m.Row(m.Data(cat.Name, btnCategory.Unique, strconv.FormatUint(uint64(cat.ID), 10))))
	}
	rows = append(rows, m.Row(m.Data("⬅️ Назад", btnMainMenu.Unique)))
	m.Inline(rows...)
	return m
}

func productsMenu(prods []models.Product) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, p := range prods {
		label := fmt.Sprintf("%s — %.0f₽", p.Name, p.Price)
		rows = append(rows, m.Row(m.Data(label, btnProduct.Unique, strconv.FormatUint(uint64(p.ID), 10))))
	}
	rows = append(rows, m.Row(m.Data("⬅️ Назад", btnCatalog.Unique)))
	m.Inline(rows...)
	return m
}

func buyMenu(productID uint) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	id := strconv.FormatUint(uint64(productID), 10)
	m.Inline(
		m.Row(m.Data("💰 Купить", btnBuy.Unique, id)),
		m.Row(m.Data("⬅️ Назад", btnCatalog.Unique)),
	)
	return m
}

func inventoryMenu(items []ledger.InventoryItem) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, it := range items {
		label := fmt.Sprintf("%s (%s)", it.ProductName, it.PhoneNumber)
		rows = append(rows, m.Row(m.Data(label, btnMyItem.Unique, strconv.FormatUint(uint64(it.UnitID), 10))))
	}
	rows = append(rows, m.Row(m.Data("⬅️ Назад", btnMainMenu.Unique)))
	m.Inline(rows...)
	return m
}

func itemControls(unitID uint) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	id := strconv.FormatUint(uint64(unitID), 10)
	m.Inline(
		m.Row(m.Data("🔔 Получить код", btnGetCode.Unique, id)),
		m.Row(m.Data("📄 Скачать .session", btnDlSession.Unique, id), m.Data("🗂 TData (zip)", btnDlTdata.Unique, id)),
		m.Row(m.Data("⬅️ Назад", btnInventory.Unique)),
	)
	return m
}

func codeMenu(unitID uint) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	id := strconv.FormatUint(uint64(unitID), 10)
	m.Inline(
		m.Row(m.Data("🔄 Обновить", btnGetCode.Unique, id)),
		m.Row(m.Data("⬅️ Назад", btnMyItem.Unique, id)),
	)
	return m
}
