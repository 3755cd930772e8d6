package flow

import "kwrelay/internal/types"

// Texts is one locale's set of replies. Entries with a %s verb receive the command argument.
type Texts struct {
	Denied     map[string]string
	MissingArg map[string]string

	KeywordAdded    string
	KeywordExists   string
	KeywordRemoved  string
	KeywordNotFound string
	KeywordsEmpty   string
	KeywordsHeader  string

	UserAdded    string
	UserExists   string
	UserRemoved  string
	UserNotFound string
	UsersEmpty   string
	UsersHeader  string

	SaveFailed string
	Unknown    string
	Help       string
}

var textsEN = Texts{
	Denied: map[string]string{
		CmdAddWord:    "You are not permitted to add keywords.",
		CmdRemoveWord: "You are not permitted to remove keywords.",
		CmdListWords:  "You are not permitted to view the keyword list.",
		CmdAddUser:    "You are not permitted to add users.",
		CmdRemoveUser: "You are not permitted to remove users.",
		CmdListUsers:  "You are not permitted to view the user list.",
	},
	MissingArg: map[string]string{
		CmdAddWord:    "Please specify the keyword to add.",
		CmdRemoveWord: "Please specify the keyword to remove.",
		CmdAddUser:    "Please specify the user to add.",
		CmdRemoveUser: "Please specify the user to remove.",
	},

	KeywordAdded:    "Keyword '%s' added.",
	KeywordExists:   "Keyword '%s' is already in the list.",
	KeywordRemoved:  "Keyword '%s' removed.",
	KeywordNotFound: "Keyword '%s' was not found in the list.",
	KeywordsEmpty:   "The keyword list is empty.",
	KeywordsHeader:  "Keywords:",

	UserAdded:    "User '%s' added.",
	UserExists:   "User '%s' is already authorized.",
	UserRemoved:  "User '%s' removed.",
	UserNotFound: "User '%s' was not found in the list.",
	UsersEmpty:   "The user list is empty.",
	UsersHeader:  "Authorized users:",

	SaveFailed: "The change could not be saved, so nothing was changed. Please try again later.",
	Unknown:    "Unknown command. Send /help for the list of commands.",
	Help: `Available commands:
- /add_word <keyword>: add a keyword to the list.
- /remove_word <keyword>: remove a keyword from the list.
- /list_words: show all keywords.
- /add_user <username>: authorize a user.
- /remove_user <username>: remove a user from the authorized list.
- /list_users: show all authorized users.
- /help: show this help message.

Note: only authorized users can add or remove keywords and users.`,
}

var textsRU = Texts{
	Denied: map[string]string{
		CmdAddWord:    "У вас нет прав для добавления ключевых слов.",
		CmdRemoveWord: "У вас нет прав для удаления ключевых слов.",
		CmdListWords:  "У вас нет прав для просмотра списка ключевых слов.",
		CmdAddUser:    "У вас нет прав для добавления пользователей.",
		CmdRemoveUser: "У вас нет прав для удаления пользователей.",
		CmdListUsers:  "У вас нет прав для получения списка пользователей.",
	},
	MissingArg: map[string]string{
		CmdAddWord:    "Пожалуйста, укажите ключевое слово для добавления.",
		CmdRemoveWord: "Пожалуйста, укажите ключевое слово для удаления.",
		CmdAddUser:    "Пожалуйста, укажите пользователя для добавления.",
		CmdRemoveUser: "Пожалуйста, укажите пользователя для удаления.",
	},

	KeywordAdded:    "Ключевое слово '%s' добавлено.",
	KeywordExists:   "Ключевое слово '%s' уже есть в списке.",
	KeywordRemoved:  "Ключевое слово '%s' удалено.",
	KeywordNotFound: "Ключевое слово '%s' не найдено в списке.",
	KeywordsEmpty:   "Список ключевых слов пуст.",
	KeywordsHeader:  "Список ключевых слов:",

	UserAdded:    "Пользователь '%s' добавлен.",
	UserExists:   "Пользователь '%s' уже авторизован.",
	UserRemoved:  "Пользователь '%s' удалён.",
	UserNotFound: "Пользователь '%s' не найден в списке.",
	UsersEmpty:   "Список пользователей пуст.",
	UsersHeader:  "Список пользователей:",

	SaveFailed: "Не удалось сохранить изменения, ничего не изменено. Попробуйте позже.",
	Unknown:    "Неизвестная команда. Отправьте /help, чтобы увидеть список команд.",
	Help: `Доступные команды:
- /add_word <ключевое_слово>: Добавить ключевое слово в список.
- /remove_word <ключевое_слово>: Удалить ключевое слово из списка.
- /list_words: Вывести список всех ключевых слов.
- /add_user <имя_пользователя>: Добавить пользователя в список авторизованных.
- /remove_user <имя_пользователя>: Удалить пользователя из списка авторизованных.
- /list_users: Вывести список всех авторизованных пользователей.
- /help: Показать это сообщение справки.

Примечание: Только авторизованные пользователи могут добавлять или удалять ключевые слова и пользователей.`,
}

// TextsFor returns the catalog for locale, falling back to English.
func TextsFor(locale string) Texts {
	if locale == types.LocaleRU {
		return textsRU
	}
	return textsEN
}
