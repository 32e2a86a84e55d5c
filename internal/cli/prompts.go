package cli

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"stock-advisors/internal/models"
)

// PromptForSymbol prompts the user to enter a stock ticker symbol
func PromptForSymbol() (string, error) {
	var symbol string
	prompt := &survey.Input{
		Message: "Enter the stock ticker symbol (e.g., AAPL, MSFT, GOOGL):",
		Help:    "Please enter a valid stock ticker symbol",
	}

	err := survey.AskOne(prompt, &symbol, survey.WithValidator(func(val interface{}) error {
		str := strings.TrimSpace(strings.ToUpper(val.(string)))
		if len(str) == 0 {
			return fmt.Errorf("ticker symbol cannot be empty")
		}
		if len(str) > 10 {
			return fmt.Errorf("ticker symbol too long (max 10 characters)")
		}
		matched, _ := regexp.MatchString(`^[A-Z0-9.-]+$`, str)
		if !matched {
			return fmt.Errorf("invalid ticker format (use letters, numbers, dots, and hyphens only)")
		}
		return nil
	}))

	if err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ToUpper(symbol)), nil
}

// ConfirmTrade asks the user to confirm an order before execution
func ConfirmTrade(action models.TradeAction, quantity int64, symbol, price string) (bool, error) {
	confirmed := false
	prompt := &survey.Confirm{
		Message: fmt.Sprintf("Execute %s %d %s @ $%s?", action, quantity, symbol, price),
		Default: true,
	}
	if err := survey.AskOne(prompt, &confirmed); err != nil {
		return false, err
	}
	return confirmed, nil
}

// PromptForAction asks which side to trade
func PromptForAction() (models.TradeAction, error) {
	var choice string
	prompt := &survey.Select{
		Message: "Select the trade direction:",
		Options: []string{
			string(models.ActionBuy),
			string(models.ActionStrongBuy),
			string(models.ActionSell),
			string(models.ActionStrongSell),
		},
		Default: string(models.ActionBuy),
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return "", err
	}
	return models.TradeAction(choice), nil
}
